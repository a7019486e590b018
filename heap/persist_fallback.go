//go:build !linux && !freebsd && !darwin

package heap

// persistRange is a no-op on platforms without a usable msync; durability
// is limited to what the pool's flush path provides.
func persistRange(data []byte, off, n int64) {
	_ = data
	_ = off
	_ = n
}
