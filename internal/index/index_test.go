package index

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/APTlantis/rskachka/internal/item"
)

func writeTempIndex(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return path
}

func TestOpenSkipsHeaderByDefault(t *testing.T) {
	path := writeTempIndex(t, "id,url\nid001,http://x/a.png\nid002,http://x/b.png\n")

	r, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec[0] != "id001" {
		t.Fatalf("expected first data row, got header-skipped mismatch: %v", rec)
	}
}

func TestOpenNoHeaderReadsFirstRowAsData(t *testing.T) {
	path := writeTempIndex(t, "id001,http://x/a.png\n")

	r, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec[0] != "id001" {
		t.Fatalf("expected first row as data, got %v", rec)
	}
}

func TestNextReturnsEOFAtEnd(t *testing.T) {
	path := writeTempIndex(t, "id,url\nid001,http://x/a.png\n")
	r, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStreamVisitsEveryRecord(t *testing.T) {
	path := writeTempIndex(t, "id,url\na,http://x/1\nb,http://x/2\nc,http://x/3\n")

	var ids []string
	err := Stream(context.Background(), path, false, func(rec item.Record) (bool, error) {
		ids = append(ids, rec[0])
		return true, nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestStreamStopsWhenFnReturnsFalse(t *testing.T) {
	path := writeTempIndex(t, "id,url\na,http://x/1\nb,http://x/2\nc,http://x/3\n")

	var ids []string
	err := Stream(context.Background(), path, false, func(rec item.Record) (bool, error) {
		ids = append(ids, rec[0])
		return len(ids) < 2, nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected early stop after 2 records, got %v", ids)
	}
}
