package format

// Binary layout of a pmemkit pool file.
//
// A pool is a single file mapped read-write into the process address space:
//
//	+-------------------+ 0x0000
//	| pool header (4K)  |
//	+-------------------+ 0x1000
//	| extent 0          |
//	| extent 1          |
//	| ...               |
//	+-------------------+
//
// Extents are page-multiple regions appended as the heap grows. Each extent
// starts with a 32-byte header followed by a sequence of cells. A cell begins
// with a signed 8-byte size word covering the header itself; negative means
// the cell is allocated, positive means it is free.

var (
	// PoolSignature is the four-byte magic at the start of every pool file.
	PoolSignature = []byte{'p', 'm', 'p', 'l'}

	// ExtentSignature is the four-byte magic at the start of each heap extent.
	ExtentSignature = []byte{'x', 't', 'n', 't'}
)

const (
	// PoolVersion is the current pool file format version.
	PoolVersion = 1

	// HeaderSize is the size of the pool header in bytes. The heap area
	// always begins at this offset.
	HeaderSize = 4096

	// ExtentHeaderSize is the size of the extent header in bytes.
	ExtentHeaderSize = 0x20

	// ExtentAlignment is the required alignment and granularity of extents.
	ExtentAlignment = 4096

	// CellHeaderSize is the number of bytes used by the signed size word
	// preceding every cell payload.
	CellHeaderSize = 8

	// CellAlignment is the alignment of cell sizes and offsets. Payloads
	// therefore start on 8-byte boundaries, which satisfies the alignment
	// of every Go scalar type.
	CellAlignment = 8

	// MinCellSize is the smallest legal cell (header plus payload).
	MinCellSize = 16
)

// Pool header field offsets. All integers are little-endian.
const (
	SignatureOffset    = 0x00 // 4 bytes, "pmpl"
	SignatureSize      = 4
	VersionOffset      = 0x04 // uint32
	PrimarySeqOffset   = 0x08 // uint32, bumped at transaction begin
	SecondarySeqOffset = 0x0C // uint32, set equal to primary at commit
	HeapSizeOffset     = 0x10 // uint64, bytes of extents after the header
	MaxSizeOffset      = 0x18 // uint64, max file size; 0 means unbounded
	PoolUIDOffset      = 0x20 // uint64, random identity assigned at create
	CreatedOffset      = 0x28 // uint64, creation time, ns since Unix epoch
	ChecksumOffset     = 0xFC // uint32, XOR of the preceding 63 dwords
)

const (
	// ChecksumDwords is the number of 32-bit words covered by the header
	// checksum. The checksum field itself is not included.
	ChecksumDwords = ChecksumOffset / 4

	// DWORDSize is the size of a 32-bit word.
	DWORDSize = 4
)

// Extent header field offsets, relative to the extent start.
const (
	ExtentSignatureOffset = 0x00 // 4 bytes, "xtnt"
	ExtentSizeOffset      = 0x04 // uint32, total extent size including header
	ExtentFileOffset      = 0x08 // uint64, absolute file offset of the extent
)
