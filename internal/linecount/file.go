package linecount

import (
	"context"
	"os"

	"github.com/blevesearch/mmap-go"
)

// CountFile memory-maps path read-only and returns its newline count,
// parallelized across chunks. The mapping is unmapped before returning.
func CountFile(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, nil
	}

	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer region.Unmap()

	return CountParallel(ctx, region)
}
