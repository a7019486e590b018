package pool

import (
	"bytes"
	"fmt"

	"github.com/pmemkit/pmemkit/internal/format"
)

// Header is a zero-copy view of the 4KiB pool header at the start of the
// file. All accessors read directly from the mapped bytes.
type Header struct {
	raw []byte // len >= format.HeaderSize
}

// hasPoolSignature is a fast, zero-alloc check for the pool magic.
func hasPoolSignature(b []byte) bool {
	const off = format.SignatureOffset
	const n = format.SignatureSize
	if len(b) < off+n {
		return false
	}
	return bytes.Equal(b[off:off+n], format.PoolSignature)
}

// ParseHeader validates the signature and version and returns a header view.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < format.HeaderSize {
		return nil, fmt.Errorf("pool: file too small for header (%d): %w",
			len(b), format.ErrTruncated)
	}
	if !hasPoolSignature(b) {
		return nil, fmt.Errorf("pool: bad signature: %w", format.ErrSignatureMismatch)
	}
	if v := format.ReadU32(b, format.VersionOffset); v != format.PoolVersion {
		return nil, fmt.Errorf("pool: version %d: %w", v, format.ErrVersion)
	}
	return &Header{raw: b[:format.HeaderSize]}, nil
}

// Raw returns the raw bytes of the header page.
func (h *Header) Raw() []byte { return h.raw }

// Sequence1 returns the primary sequence number.
func (h *Header) Sequence1() uint32 { return format.ReadU32(h.raw, format.PrimarySeqOffset) }

// Sequence2 returns the secondary sequence number.
func (h *Header) Sequence2() uint32 { return format.ReadU32(h.raw, format.SecondarySeqOffset) }

// IsClean returns true if Sequence1 equals Sequence2, indicating the pool was
// not interrupted mid-transaction.
func (h *Header) IsClean() bool { return h.Sequence1() == h.Sequence2() }

// HeapSize returns the number of extent bytes after the header page.
func (h *Header) HeapSize() uint64 { return format.ReadU64(h.raw, format.HeapSizeOffset) }

// MaxSize returns the configured maximum file size in bytes; 0 means
// unbounded.
func (h *Header) MaxSize() uint64 { return format.ReadU64(h.raw, format.MaxSizeOffset) }

// UID returns the pool identity assigned at creation. Persistent pointers
// carry this value to name their owning pool.
func (h *Header) UID() uint64 { return format.ReadU64(h.raw, format.PoolUIDOffset) }

// Created returns the creation timestamp in nanoseconds since the Unix epoch.
func (h *Header) Created() uint64 { return format.ReadU64(h.raw, format.CreatedOffset) }

// Checksum returns the stored header checksum.
func (h *Header) Checksum() uint32 { return format.ReadU32(h.raw, format.ChecksumOffset) }

// HeaderChecksum computes the XOR checksum over the checksummed header
// region. The checksum field itself is excluded.
func HeaderChecksum(data []byte) uint32 {
	if len(data) < format.ChecksumOffset {
		return 0
	}
	var checksum uint32
	for i := range format.ChecksumDwords {
		checksum ^= format.ReadU32(data, i*format.DWORDSize)
	}
	return checksum
}

// UpdateHeaderChecksum recomputes and stores the header checksum. Must be
// called after any header field change, before the header page is flushed.
func UpdateHeaderChecksum(data []byte) {
	if len(data) < format.HeaderSize {
		return
	}
	format.PutU32(data, format.ChecksumOffset, HeaderChecksum(data))
}
