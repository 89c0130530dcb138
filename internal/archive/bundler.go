// Package archive rolls completed images from the content-addressed store
// into rotating compressed tar bundles for cold storage.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Bundler streams files into rolling tar.zst archives, rotating before an
// add that would take a non-empty archive's uncompressed content past its
// target size.
type Bundler struct {
	outDir      string
	targetBytes int64

	mu           sync.Mutex
	currentIdx   int
	currentBytes int64
	tw           *tar.Writer
	zw           *zstd.Encoder
	outFile      *os.File
}

// NewBundler creates outDir if needed and opens the first archive.
func NewBundler(outDir string, targetGB int64) (*Bundler, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	b := &Bundler{outDir: outDir, targetBytes: targetGB * (1 << 30)}
	if err := b.rotateLocked(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundler) rotateLocked() error {
	if b.tw != nil {
		b.tw.Close()
	}
	if b.zw != nil {
		b.zw.Close()
	}
	if b.outFile != nil {
		b.outFile.Close()
	}

	name := fmt.Sprintf("bundle-%04d.tar.zst", b.currentIdx)
	path := filepath.Join(b.outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		f.Close()
		return err
	}

	b.outFile = f
	b.zw = zw
	b.tw = tar.NewWriter(zw)
	b.currentBytes = 0
	b.currentIdx++
	return nil
}

// AddFile adds the content-addressed image at filePath to the current
// archive under headerName, which should be a shard-relative path
// (XX/YY/ZZZZZZZZZZZZ.ext) so bundles stay self-describing.
func (b *Bundler) AddFile(filePath, headerName string) error {
	fi, err := os.Stat(filePath)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.currentBytes > 0 && b.currentBytes+fi.Size() > b.targetBytes {
		if err := b.rotateLocked(); err != nil {
			return err
		}
	}

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &tar.Header{
		Name:    headerName,
		Mode:    0o644,
		Size:    fi.Size(),
		ModTime: time.Unix(0, 0),
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return err
	}
	n, err := io.Copy(b.tw, f)
	if err != nil {
		return err
	}
	b.currentBytes += n
	return nil
}

// Close flushes and closes the current archive.
func (b *Bundler) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tw != nil {
		if err := b.tw.Close(); err != nil {
			return err
		}
	}
	if b.zw != nil {
		if err := b.zw.Close(); err != nil {
			return err
		}
	}
	if b.outFile != nil {
		return b.outFile.Close()
	}
	return nil
}

// ShardHeaderName derives a bundle-relative path from an on-disk path under
// root, so the bundle's internal layout mirrors the store's shard layout.
func ShardHeaderName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(strings.TrimPrefix(rel, "./"))
}

// BundleStore walks every regular file under root and adds it to b, using
// ShardHeaderName for each archive entry's name.
func BundleStore(b *Bundler, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return b.AddFile(path, ShardHeaderName(root, path))
	})
}
