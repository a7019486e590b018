package heap

// persist pushes a byte range of the mapping toward stable storage. This is
// the allocator's write-ordering primitive: a header flip is only a commit
// point if everything it covers reached the file first.
//
// Errors are swallowed here on purpose. The mapping itself is always
// consistent in the page cache, and callers that need a hard durability
// barrier (transaction commit) drive an explicit flush through the dirty
// tracker, which does report errors.
func (h *Heap) persist(off, n int64) {
	if n <= 0 {
		return
	}
	data := h.p.Bytes()
	if off < 0 || off+n > int64(len(data)) {
		return
	}
	persistRange(data, off, n)
}
