package format

// Alignment utilities. Cell sizes are 8-byte aligned; extents are page
// aligned.

const (
	cellAlignmentMask   = CellAlignment - 1
	extentAlignmentMask = ExtentAlignment - 1
)

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n int64) int64 {
	return (n + cellAlignmentMask) & ^int64(cellAlignmentMask)
}

// AlignExtent returns n aligned up to the next 4KB boundary.
//
// Example:
//
//	AlignExtent(1)    = 4096
//	AlignExtent(4096) = 4096
//	AlignExtent(4097) = 8192
func AlignExtent(n int64) int64 {
	return (n + extentAlignmentMask) & ^int64(extentAlignmentMask)
}
