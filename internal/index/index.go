// Package index streams records from the delimited-text input file that
// enumerates items to fetch.
package index

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/APTlantis/rskachka/internal/item"
)

// Reader streams Records from an open delimited-text file, one
// byte-by-byte pass, independent of any memory-mapped sizing pass over the
// same file.
type Reader struct {
	f   *os.File
	csv *csv.Reader
}

// Open opens path for streaming record reads. If noHeader is false, the
// first record is consumed and discarded here so callers never see it.
func Open(path string, noHeader bool) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	r := &Reader{f: f, csv: cr}
	if !noHeader {
		if _, err := cr.Read(); err != nil && err != io.EOF {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Next() (item.Record, error) {
	fields, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	return item.Record(fields), nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// HasHeader reports whether Open would skip a header row for this config:
// a row count sized via a separate pass (C1) needs to subtract one when a
// header is present.
func HasHeader(noHeader bool) bool {
	return !noHeader
}

// Stream reads every record from path in order, invoking fn for each until
// fn returns false, an error occurs, or ctx is cancelled.
func Stream(ctx context.Context, path string, noHeader bool, fn func(item.Record) (bool, error)) error {
	r, err := Open(path, noHeader)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		cont, err := fn(rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}
