// Package pool manages the lifecycle of memory-mapped persistent pools.
//
// A pool is a single file mapped read-write into the process. The pool
// package owns create/open/close, growth (appending zeroed extent space and
// remapping), and the header protocol fields used by the transaction
// manager. Allocation within the mapped region is the heap package's job.
package pool

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pmemkit/pmemkit/internal/format"
	"github.com/pmemkit/pmemkit/internal/mmfile"
)

// Options configures pool creation.
type Options struct {
	// MaxSize caps the total file size in bytes. 0 means unbounded.
	// Allocations that would grow the pool past this limit fail with
	// the heap's out-of-memory error.
	MaxSize int64

	// Mode is the permission bits for the created file.
	Mode os.FileMode
}

// DefaultOptions are used when Create is given a zero Options value.
var DefaultOptions = Options{
	MaxSize: 0,
	Mode:    0o644,
}

// Pool is an open, mapped persistent pool.
type Pool struct {
	f    *os.File
	data []byte
	size int64
	hdr  *Header
	uid  uint64

	// hdrMu serializes header field updates; the sequence marks and the
	// heap-size bump come from different locks' critical sections and
	// both rewrite the checksum.
	hdrMu sync.Mutex
}

// Create initializes a new pool file at path and maps it. It fails if the
// file already exists.
func Create(path string, opts Options) (*Pool, error) {
	if opts.Mode == 0 {
		opts.Mode = DefaultOptions.Mode
	}
	if opts.MaxSize != 0 && opts.MaxSize < format.HeaderSize+format.ExtentAlignment {
		return nil, fmt.Errorf("pool: max size %d cannot hold a single extent", opts.MaxSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, opts.Mode)
	if err != nil {
		return nil, err
	}

	hdr := make([]byte, format.HeaderSize)
	copy(hdr[format.SignatureOffset:], format.PoolSignature)
	format.PutU32(hdr, format.VersionOffset, format.PoolVersion)
	format.PutU32(hdr, format.PrimarySeqOffset, 1)
	format.PutU32(hdr, format.SecondarySeqOffset, 1)
	format.PutU64(hdr, format.HeapSizeOffset, 0)
	format.PutU64(hdr, format.MaxSizeOffset, uint64(opts.MaxSize))
	format.PutU64(hdr, format.PoolUIDOffset, newPoolUID())
	format.PutU64(hdr, format.CreatedOffset, uint64(time.Now().UnixNano()))
	UpdateHeaderChecksum(hdr)

	if _, err := f.Write(hdr); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("pool: write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("pool: sync header: %w", err)
	}

	return wrap(f, int64(format.HeaderSize))
}

// Open maps an existing pool file read-write.
func Open(path string) (*Pool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.Size() < format.HeaderSize {
		_ = f.Close()
		return nil, fmt.Errorf("pool: file too small (%d bytes): %w",
			st.Size(), format.ErrTruncated)
	}
	return wrap(f, st.Size())
}

// wrap maps the file, validates the header, and registers the pool.
func wrap(f *os.File, size int64) (*Pool, error) {
	data, err := mmfile.MapRW(f, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		_ = mmfile.Unmap(data)
		_ = f.Close()
		return nil, err
	}
	if got, want := hdr.Checksum(), HeaderChecksum(data); got != want {
		_ = mmfile.Unmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("pool: header checksum mismatch (got 0x%08X, want 0x%08X)",
			got, want)
	}

	// The header heap-size field is authoritative; trailing slack past it
	// (from an interrupted grow) is truncated so extents stay contiguous.
	logicalEnd := int64(format.HeaderSize) + int64(hdr.HeapSize())
	p := &Pool{f: f, data: data, size: size, hdr: hdr, uid: hdr.UID()}
	if size > logicalEnd {
		if err := p.truncate(logicalEnd); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("pool: truncate trailing slack: %w", err)
		}
	}

	register(p)
	return p, nil
}

// Close unmaps and closes the pool. Persistent pointers into this pool are
// invalid until the pool is opened again.
func (p *Pool) Close() error {
	deregister(p)
	var err error
	if p.data != nil {
		_ = mmfile.Unmap(p.data)
		p.data = nil
	}
	if p.f != nil {
		err = p.f.Close()
		p.f = nil
	}
	p.hdr = nil
	return err
}

// Bytes returns the mapped pool contents. The slice is invalidated by
// Append, Close, and truncation.
func (p *Pool) Bytes() []byte { return p.data }

// Size returns the current mapped size in bytes.
func (p *Pool) Size() int64 { return p.size }

// UID returns the pool identity persistent pointers resolve against.
func (p *Pool) UID() uint64 { return p.uid }

// Header returns the header view for this pool.
func (p *Pool) Header() *Header { return p.hdr }

// FD returns the underlying file descriptor, or -1 if closed.
func (p *Pool) FD() int {
	if p == nil || p.f == nil {
		return -1
	}
	return int(p.f.Fd())
}

// MaxSize returns the configured size cap, 0 when unbounded.
func (p *Pool) MaxSize() int64 { return int64(p.hdr.MaxSize()) }

// Append grows the pool file by n zeroed bytes and remaps it. The caller
// (the heap) is responsible for formatting the new space as an extent and
// for updating the header heap-size field.
func (p *Pool) Append(n int64) error {
	if p == nil || p.f == nil {
		return errors.New("pool: cannot append to nil or closed pool")
	}
	if n <= 0 {
		return nil
	}
	newSize := p.size + n
	if maxSize := p.MaxSize(); maxSize != 0 && newSize > maxSize {
		return fmt.Errorf("pool: append of %d bytes exceeds max size %d", n, maxSize)
	}

	if p.data != nil {
		if err := mmfile.Unmap(p.data); err != nil {
			return fmt.Errorf("pool: unmap before grow: %w", err)
		}
		p.data = nil
	}

	if err := p.f.Truncate(newSize); err != nil {
		p.remapBestEffort(p.size)
		return fmt.Errorf("pool: truncate file: %w", err)
	}

	data, err := mmfile.MapRW(p.f, newSize)
	if err != nil {
		p.remapBestEffort(p.size)
		return fmt.Errorf("pool: remap after grow: %w", err)
	}
	p.data = data
	p.size = newSize

	// The old header view wraps a slice into the unmapped region.
	hdr, err := ParseHeader(p.data)
	if err != nil {
		return fmt.Errorf("pool: re-parse header after grow: %w", err)
	}
	p.hdr = hdr
	return nil
}

// BumpHeapSize adds delta to the header heap-size field. Called by the heap
// after appending an extent. The caller flushes the header.
func (p *Pool) BumpHeapSize(delta uint64) {
	if p == nil || p.data == nil || len(p.data) < format.HeaderSize {
		return
	}
	p.hdrMu.Lock()
	defer p.hdrMu.Unlock()
	current := format.ReadU64(p.data, format.HeapSizeOffset)
	format.PutU64(p.data, format.HeapSizeOffset, current+delta)
	UpdateHeaderChecksum(p.data)
}

// MarkDirty advances the primary sequence number, making IsClean false, and
// returns the new value. The transaction manager calls this at begin, before
// the first heap mutation; the caller flushes the header.
func (p *Pool) MarkDirty() uint32 {
	p.hdrMu.Lock()
	defer p.hdrMu.Unlock()
	seq := p.hdr.Sequence1() + 1
	if seq == 0 {
		seq = 1
	}
	format.PutU32(p.data, format.PrimarySeqOffset, seq)
	UpdateHeaderChecksum(p.data)
	return seq
}

// MarkClean sets the secondary sequence number equal to the primary, making
// IsClean true again. The transaction manager calls this at commit, after
// all data reached the file; the caller flushes the header.
func (p *Pool) MarkClean() {
	p.hdrMu.Lock()
	defer p.hdrMu.Unlock()
	format.PutU32(p.data, format.SecondarySeqOffset, p.hdr.Sequence1())
	UpdateHeaderChecksum(p.data)
}

// truncate shrinks the file to newSize and remaps.
func (p *Pool) truncate(newSize int64) error {
	if newSize < format.HeaderSize {
		return fmt.Errorf("pool: truncate size %d below header size", newSize)
	}
	if newSize >= p.size {
		return nil
	}
	if p.data != nil {
		if err := mmfile.Unmap(p.data); err != nil {
			return fmt.Errorf("pool: unmap before truncate: %w", err)
		}
		p.data = nil
	}
	if err := p.f.Truncate(newSize); err != nil {
		p.remapBestEffort(p.size)
		return fmt.Errorf("pool: truncate file: %w", err)
	}
	data, err := mmfile.MapRW(p.f, newSize)
	if err != nil {
		return fmt.Errorf("pool: remap after truncate: %w", err)
	}
	p.data = data
	p.size = newSize
	hdr, err := ParseHeader(p.data)
	if err != nil {
		return fmt.Errorf("pool: re-parse header after truncate: %w", err)
	}
	p.hdr = hdr
	return nil
}

// remapBestEffort tries to restore the previous mapping after a failed
// grow/truncate so the pool stays usable.
func (p *Pool) remapBestEffort(size int64) {
	data, err := mmfile.MapRW(p.f, size)
	if err != nil {
		return
	}
	p.data = data
	if hdr, err := ParseHeader(data); err == nil {
		p.hdr = hdr
	}
}

// newPoolUID draws a random non-zero 64-bit pool identity.
func newPoolUID() uint64 {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand never fails on supported platforms; fall
			// back to the clock rather than panic.
			return uint64(time.Now().UnixNano()) | 1
		}
		if v := binary.LittleEndian.Uint64(b[:]); v != 0 {
			return v
		}
	}
}
