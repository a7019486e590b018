// Package snapshot writes and restores compressed point-in-time copies of a
// pool file.
//
// A snapshot is a small fixed header followed by a zstd stream of the raw
// pool bytes, with the codec's content checksum enabled so truncated or
// bit-rotted snapshots fail decode instead of producing a silently broken
// pool. Snapshots are only taken of clean pools; a pool inside a
// transaction has no consistent byte image to copy.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pmemkit/pmemkit/pool"
)

var magic = []byte{'p', 'm', 's', 'n'}

const (
	version    = 1
	headerSize = 4 + 4 + 8 + 8 + 8 // magic, version, raw size, pool uid, created
)

var (
	// ErrNotSnapshot indicates the input does not start with the snapshot
	// magic.
	ErrNotSnapshot = errors.New("snapshot: not a snapshot file")

	// ErrPoolDirty indicates the pool is mid-transaction and has no
	// consistent image to snapshot.
	ErrPoolDirty = errors.New("snapshot: pool is not clean")
)

// Info describes a snapshot without decompressing it.
type Info struct {
	PoolUID uint64
	RawSize int64 // uncompressed pool size in bytes
	Created time.Time
}

// Write streams a snapshot of p to w.
func Write(w io.Writer, p *pool.Pool) error {
	if !p.Header().IsClean() {
		return ErrPoolDirty
	}
	data := p.Bytes()

	hdr := make([]byte, headerSize)
	copy(hdr, magic)
	binary.LittleEndian.PutUint32(hdr[4:], version)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(len(data)))
	binary.LittleEndian.PutUint64(hdr[16:], p.UID())
	binary.LittleEndian.PutUint64(hdr[24:], uint64(time.Now().UnixNano()))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderCRC(true))
	if err != nil {
		return fmt.Errorf("snapshot: init encoder: %w", err)
	}
	if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
		_ = enc.Close()
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("snapshot: finish stream: %w", err)
	}
	return nil
}

// Save writes a snapshot of p to path. The file appears atomically: the
// stream goes to a temp file in the same directory, fsynced, then renamed.
func Save(path string, p *pool.Pool) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pmsn-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Write(tmp, p); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// ReadInfo parses the snapshot header from r.
func ReadInfo(r io.Reader) (*Info, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic) {
		return nil, ErrNotSnapshot
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", v)
	}
	return &Info{
		RawSize: int64(binary.LittleEndian.Uint64(hdr[8:])),
		PoolUID: binary.LittleEndian.Uint64(hdr[16:]),
		Created: time.Unix(0, int64(binary.LittleEndian.Uint64(hdr[24:]))),
	}, nil
}

// ReadInfoFile parses the snapshot header of the file at path.
func ReadInfoFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadInfo(f)
}

// Restore materializes the snapshot from r as a new pool file at path. It
// refuses to overwrite an existing file and validates the decompressed
// image before the file appears at path, so a bad snapshot never leaves a
// half-written pool behind.
func Restore(r io.Reader, path string) error {
	info, err := ReadInfo(r)
	if err != nil {
		return err
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("snapshot: init decoder: %w", err)
	}
	defer dec.Close()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pmsn-restore-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, dec)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: decompress: %w", err)
	}
	if n != info.RawSize {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: decompressed %d bytes, header says %d", n, info.RawSize)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}

	// The restored image must parse as a pool before it lands at path.
	p, err := pool.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("snapshot: restored image invalid: %w", err)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("snapshot: close validation mapping: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("snapshot: %s already exists", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// RestoreFile restores the snapshot at src as a new pool file at dst.
func RestoreFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return Restore(f, dst)
}
