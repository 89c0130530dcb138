// Package reconcile cross-checks a source index against the on-disk
// content-addressed store, splitting records into found and missing sets.
package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/APTlantis/rskachka/internal/index"
	"github.com/APTlantis/rskachka/internal/item"
)

// Options configures a reconciliation run. MissingPath may be empty, in
// which case missing records are counted but not written anywhere.
type Options struct {
	SourcePath  string
	IndexPath   string
	MissingPath string
	OutputRoot  string
	Extension   string
	URLField    int
	NoHeader    bool
	OnRecord    func()
}

// Result summarizes a completed run.
type Result struct {
	Found   int
	Missing int
	Skipped int
}

// Run streams SourcePath, resolves each record's content-addressed path
// under OutputRoot, and writes index.csv (found, with an image_path column
// appended) and, when MissingPath is set, missing.csv (not found, in the
// original column layout). Records that fail to parse are skipped and
// counted, mirroring the warn-and-continue behavior of the Rust producer.
func Run(opts Options) (Result, error) {
	src, err := index.Open(opts.SourcePath, opts.NoHeader)
	if err != nil {
		return Result{}, fmt.Errorf("opening source index: %w", err)
	}
	defer src.Close()

	indexFile, err := os.Create(opts.IndexPath)
	if err != nil {
		return Result{}, fmt.Errorf("creating index file: %w", err)
	}
	defer indexFile.Close()
	indexWriter := csv.NewWriter(indexFile)
	defer indexWriter.Flush()

	var missingWriter *csv.Writer
	if opts.MissingPath != "" {
		missingFile, err := os.Create(opts.MissingPath)
		if err != nil {
			return Result{}, fmt.Errorf("creating missing file: %w", err)
		}
		defer missingFile.Close()
		missingWriter = csv.NewWriter(missingFile)
		defer missingWriter.Flush()
	}

	if !opts.NoHeader {
		header, herr := readHeader(opts.SourcePath)
		if herr != nil {
			return Result{}, fmt.Errorf("reading header: %w", herr)
		}
		if missingWriter != nil {
			if err := missingWriter.Write(header); err != nil {
				return Result{}, fmt.Errorf("writing missing header: %w", err)
			}
		}
		indexHeader := append(append([]string{}, header...), "image_path")
		if err := indexWriter.Write(indexHeader); err != nil {
			return Result{}, fmt.Errorf("writing index header: %w", err)
		}
	}

	var res Result
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading record: %w", err)
		}

		if opts.OnRecord != nil {
			opts.OnRecord()
		}

		it, err := item.FromRecord(rec, nil, opts.URLField, opts.OutputRoot, opts.Extension)
		if err != nil {
			res.Skipped++
			continue
		}

		if _, statErr := os.Stat(it.Path); statErr == nil {
			row := append(append([]string{}, []string(rec)...), it.Path)
			if err := indexWriter.Write(row); err != nil {
				return res, fmt.Errorf("writing index record: %w", err)
			}
			res.Found++
		} else {
			res.Missing++
			if missingWriter != nil {
				if err := missingWriter.Write(rec); err != nil {
					return res, fmt.Errorf("writing missing record: %w", err)
				}
			}
		}
	}

	indexWriter.Flush()
	if err := indexWriter.Error(); err != nil {
		return res, err
	}
	if missingWriter != nil {
		missingWriter.Flush()
		if err := missingWriter.Error(); err != nil {
			return res, err
		}
	}

	return res, nil
}

func readHeader(path string) ([]string, error) {
	r, err := index.Open(path, true)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	rec, err := r.Next()
	if err != nil {
		return nil, err
	}
	return []string(rec), nil
}
