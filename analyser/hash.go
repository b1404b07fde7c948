package analyser

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"demolens/demo"
	"demolens/model"
)

// HashDemo fingerprints a demo's content: an MD5 of the file creation
// time (seconds resolution) followed by the first 0x430 bytes, which
// cover the header and early signon data. Deterministic, so the same
// file always maps to the same cache entry.
func HashDemo(b []byte, created time.Time) model.CacheKey {
	h := md5.New()

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(created.Unix()))
	h.Write(ts[:])

	n := len(b)
	if n > demo.HeaderSize {
		n = demo.HeaderSize
	}
	h.Write(b[:n])

	var key model.CacheKey
	h.Sum(key[:0])
	return key
}

// HashDemoFile fingerprints a demo on disk without reading the whole
// file, returning the key and the creation time that went into it.
func HashDemoFile(path string) (model.CacheKey, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.CacheKey{}, time.Time{}, fmt.Errorf("open demo file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.CacheKey{}, time.Time{}, fmt.Errorf("stat demo file: %w", err)
	}
	created := fileCreated(info)

	prefix := make([]byte, demo.HeaderSize)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.ErrUnexpectedEOF {
		return model.CacheKey{}, time.Time{}, fmt.Errorf("read demo header: %w", err)
	}

	return HashDemo(prefix[:n], created), created, nil
}

// fileCreated approximates the file creation time. Go exposes no
// portable birth time, and a recorded demo is written once and never
// touched again, so the modification time is stable for this purpose.
func fileCreated(info os.FileInfo) time.Time {
	return info.ModTime()
}
