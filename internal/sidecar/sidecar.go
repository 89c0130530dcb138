// Package sidecar writes the optional per-image provenance document next
// to a saved image: which record it came from, the URL it was fetched
// from, and when.
package sidecar

import (
	"encoding/json"
	"os"
	"time"
)

// Record is the JSON document written alongside a saved image.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PathFor returns the sidecar path for an image at imagePath: the image's
// path with ".json" appended.
func PathFor(imagePath string) string {
	return imagePath + ".json"
}

// Write serializes rec to PathFor(rec.Path) through a temp file and rename,
// so a concurrent reader never observes a partial document.
func Write(rec Record) error {
	outPath := PathFor(rec.Path)
	tmpPath := outPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Exists reports whether a sidecar already exists for imagePath. Resume
// mode does not consult it; it checks only the image file.
func Exists(imagePath string) bool {
	_, err := os.Stat(PathFor(imagePath))
	return err == nil
}
