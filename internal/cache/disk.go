package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	textExt     = ".dec.zst"
	artifactExt = ".wav"
)

// DiskStore persists cache entries under the build directory so
// unchanged sources survive across compiler runs. Intermediate text is
// zstd-compressed; rendered audio is kept alongside it. Entries are
// content-addressed by fingerprint, never evicted automatically, and
// removed only by the clean operation.
type DiskStore struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	stats Stats
}

// NewDiskStore opens (creating if needed) a disk store rooted at dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("unable to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create zstd decoder: %w", err)
	}
	return &DiskStore{dir: dir, encoder: encoder, decoder: decoder}, nil
}

// Dir returns the store's root directory.
func (d *DiskStore) Dir() string { return d.dir }

func (d *DiskStore) textPath(fp Fingerprint) string {
	return filepath.Join(d.dir, fp.Short()+textExt)
}

func (d *DiskStore) artifactPath(fp Fingerprint) string {
	return filepath.Join(d.dir, fp.Short()+artifactExt)
}

// Lookup reads the entry for fp from disk, if present.
func (d *DiskStore) Lookup(fp Fingerprint) (Entry, bool) {
	data, err := os.ReadFile(d.textPath(fp))
	if err != nil {
		d.count(func(s *Stats) { s.Misses++ })
		return Entry{}, false
	}
	text, err := d.decoder.DecodeAll(data, nil)
	if err != nil {
		// Corrupted entry: drop it and treat as a miss.
		os.Remove(d.textPath(fp))
		d.count(func(s *Stats) { s.Misses++ })
		return Entry{}, false
	}

	e := Entry{Fingerprint: fp, Text: string(text)}
	if st, err := os.Stat(d.artifactPath(fp)); err == nil && st.Mode().IsRegular() {
		e.Artifact = d.artifactPath(fp)
		e.CreatedAt = st.ModTime()
	}
	d.count(func(s *Stats) { s.Hits++ })
	return e, true
}

// Store writes the entry's text, and a copy of its artifact when one
// exists, using temp-file-then-rename so readers never observe a
// half-written entry.
func (d *DiskStore) Store(e Entry) error {
	compressed := d.encoder.EncodeAll([]byte(e.Text), nil)
	if err := d.writeFile(d.textPath(e.Fingerprint), compressed); err != nil {
		return fmt.Errorf("unable to write cache entry: %w", err)
	}

	if e.Artifact != "" && e.Artifact != d.artifactPath(e.Fingerprint) {
		if err := d.copyFile(e.Artifact, d.artifactPath(e.Fingerprint)); err != nil {
			return fmt.Errorf("unable to cache artifact: %w", err)
		}
	}

	d.count(func(s *Stats) {
		s.Entries++
		s.Bytes += int64(len(compressed))
	})
	return nil
}

// Stats returns the store's counters for this run.
func (d *DiskStore) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *DiskStore) count(f func(*Stats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}

func (d *DiskStore) writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		if werr != nil {
			return werr
		}
		return cerr
	}
	return os.Rename(tmp.Name(), path)
}

func (d *DiskStore) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return err
	}
	_, werr := io.Copy(tmp, in)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		if werr != nil {
			return werr
		}
		return cerr
	}
	return os.Rename(tmp.Name(), dst)
}
