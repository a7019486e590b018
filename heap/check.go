package heap

import (
	"fmt"

	"github.com/pmemkit/pmemkit/internal/format"
	"github.com/pmemkit/pmemkit/pool"
)

// CheckResult summarizes a full walk of a pool's durable heap structure.
type CheckResult struct {
	Extents        int
	AllocatedCells int
	FreeCells      int
	AllocatedBytes int64 // total size of allocated cells, headers included
	FreeBytes      int64 // total size of free cells, headers included

	// Problems lists every structural violation found. An empty slice
	// means the heap is well formed.
	Problems []string
}

// OK reports whether the walk found no structural problems.
func (r *CheckResult) OK() bool { return len(r.Problems) == 0 }

// Check walks the extent and cell structure recorded in the pool file and
// verifies every invariant the allocator relies on: extent signatures and
// alignment, cell size bounds, and exact tiling of each extent by cells.
// It reads only durable state and never consults an in-memory index, so it
// can audit a pool nothing else has opened.
func Check(p *pool.Pool) *CheckResult {
	res := &CheckResult{}
	data := p.Bytes()

	heapEnd := int64(format.HeaderSize) + int64(p.Header().HeapSize())
	if heapEnd > int64(len(data)) {
		res.Problems = append(res.Problems,
			fmt.Sprintf("header heap size %d exceeds mapped size %d",
				heapEnd-format.HeaderSize, len(data)-format.HeaderSize))
		return res
	}

	cur := int64(format.HeaderSize)
	for cur < heapEnd {
		if cur+format.ExtentHeaderSize > heapEnd {
			res.Problems = append(res.Problems,
				fmt.Sprintf("truncated extent header at offset %d", cur))
			return res
		}
		if string(data[cur:cur+format.SignatureSize]) != string(format.ExtentSignature) {
			res.Problems = append(res.Problems,
				fmt.Sprintf("bad extent signature at offset %d", cur))
			return res
		}
		extSize := int64(format.ReadU32(data, int(cur)+format.ExtentSizeOffset))
		switch {
		case extSize%format.ExtentAlignment != 0:
			res.Problems = append(res.Problems,
				fmt.Sprintf("extent at %d has unaligned size %d", cur, extSize))
			return res
		case cur+extSize > heapEnd:
			res.Problems = append(res.Problems,
				fmt.Sprintf("extent at %d (size %d) overruns heap end %d", cur, extSize, heapEnd))
			return res
		}
		if rec := int64(format.ReadU64(data, int(cur)+format.ExtentFileOffset)); rec != cur {
			res.Problems = append(res.Problems,
				fmt.Sprintf("extent at %d records file offset %d", cur, rec))
		}
		res.Extents++

		extEnd := cur + extSize
		c := cur + format.ExtentHeaderSize
		for c < extEnd {
			if c+format.CellHeaderSize > extEnd {
				res.Problems = append(res.Problems,
					fmt.Sprintf("truncated cell header at offset %d", c))
				return res
			}
			raw := format.ReadI64(data, int(c))
			sz := raw
			if sz < 0 {
				sz = -sz
			}
			switch {
			case sz < format.MinCellSize:
				res.Problems = append(res.Problems,
					fmt.Sprintf("cell at %d has size %d below minimum", c, raw))
				return res
			case sz%format.CellAlignment != 0:
				res.Problems = append(res.Problems,
					fmt.Sprintf("cell at %d has unaligned size %d", c, raw))
				return res
			case c+sz > extEnd:
				res.Problems = append(res.Problems,
					fmt.Sprintf("cell at %d (size %d) overruns extent end %d", c, raw, extEnd))
				return res
			}
			if raw < 0 {
				res.AllocatedCells++
				res.AllocatedBytes += sz
			} else {
				res.FreeCells++
				res.FreeBytes += sz
			}
			c += sz
		}
		cur = extEnd
	}
	return res
}
