//go:build windows

package dirty

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// flushRanges flushes the whole mapping; FlushViewOfFile writes only the
// dirty pages.
func (t *Tracker) flushRanges(data []byte) error {
	return msync(data)
}

// msync performs memory sync for the given byte slice using FlushViewOfFile.
func msync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	return windows.FlushViewOfFile(addr, uintptr(len(data)))
}

// fdatasync performs file descriptor sync using FlushFileBuffers.
func fdatasync(fd int, _ bool) error {
	return windows.FlushFileBuffers(windows.Handle(fd))
}
