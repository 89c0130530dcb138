package reconcile

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/APTlantis/rskachka/internal/item"
)

func writeSource(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "source.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func readAllRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return recs
}

func TestRunSplitsFoundAndMissing(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "store")

	source := writeSource(t, dir, "id,url\na,http://x.test/1\nb,http://x.test/2\n")

	it, err := item.FromRecord(item.Record{"a", "http://x.test/1"}, nil, 1, root, "webp")
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(it.Path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(it.Path, []byte("present"), 0o644); err != nil {
		t.Fatalf("write existing file: %v", err)
	}

	indexPath := filepath.Join(dir, "index.csv")
	missingPath := filepath.Join(dir, "missing.csv")

	res, err := Run(Options{
		SourcePath:  source,
		IndexPath:   indexPath,
		MissingPath: missingPath,
		OutputRoot:  root,
		Extension:   "webp",
		URLField:    1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Found != 1 || res.Missing != 1 || res.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	indexRecs := readAllRecords(t, indexPath)
	if len(indexRecs) != 2 {
		t.Fatalf("expected header + 1 data row in index.csv, got %v", indexRecs)
	}
	if indexRecs[0][len(indexRecs[0])-1] != "image_path" {
		t.Fatalf("expected image_path header column, got %v", indexRecs[0])
	}
	if indexRecs[1][0] != "a" || indexRecs[1][len(indexRecs[1])-1] != it.Path {
		t.Fatalf("unexpected index row: %v", indexRecs[1])
	}

	missingRecs := readAllRecords(t, missingPath)
	if len(missingRecs) != 2 {
		t.Fatalf("expected header + 1 data row in missing.csv, got %v", missingRecs)
	}
	if missingRecs[1][0] != "b" {
		t.Fatalf("unexpected missing row: %v", missingRecs[1])
	}
}

func TestRunWithoutMissingPathStillCounts(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "store")
	source := writeSource(t, dir, "id,url\na,http://x.test/1\n")

	res, err := Run(Options{
		SourcePath: source,
		IndexPath:  filepath.Join(dir, "index.csv"),
		OutputRoot: root,
		Extension:  "webp",
		URLField:   1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Missing != 1 {
		t.Fatalf("expected 1 missing record counted, got %+v", res)
	}
}

func TestRunSkipsUnparseableRecords(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "store")
	source := writeSource(t, dir, "id,url\na,not-a-url\nb,http://x.test/2\n")

	res, err := Run(Options{
		SourcePath: source,
		IndexPath:  filepath.Join(dir, "index.csv"),
		OutputRoot: root,
		Extension:  "webp",
		URLField:   1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Skipped != 1 || res.Missing != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunNoHeaderTreatsFirstRowAsData(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "store")
	source := writeSource(t, dir, "a,http://x.test/1\n")

	indexPath := filepath.Join(dir, "index.csv")
	res, err := Run(Options{
		SourcePath: source,
		IndexPath:  indexPath,
		OutputRoot: root,
		Extension:  "webp",
		URLField:   1,
		NoHeader:   true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Found+res.Missing != 1 {
		t.Fatalf("expected exactly one record processed, got %+v", res)
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if strings.Contains(string(data), "image_path") {
		t.Fatalf("no-header run should not emit a header row: %s", data)
	}
}
