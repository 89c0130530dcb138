// Package item resolves a raw index Record into the normalized (id, url,
// path) triple the rest of the pipeline operates on.
package item

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Record is an ordered sequence of string fields, as produced by a
// delimited-text reader.
type Record []string

// Item is the normalized triple derived from a Record.
type Item struct {
	ID   string
	URL  string
	Path string
}

// FieldOutOfRangeError reports a field index that does not resolve into a
// record of the given length.
type FieldOutOfRangeError struct {
	Index  int
	Length int
}

func (e *FieldOutOfRangeError) Error() string {
	return fmt.Sprintf("field index %d out of range for record of length %d", e.Index, e.Length)
}

// URLParseError wraps a failure to parse the URL field as an absolute URL.
type URLParseError struct {
	Raw string
	Err error
}

func (e *URLParseError) Error() string {
	return fmt.Sprintf("url parse error for %q: %v", e.Raw, e.Err)
}

func (e *URLParseError) Unwrap() error { return e.Err }

var errEmptyRecord = errors.New("record is empty")

// resolveIndex implements the canonical (add-then-mod) wrap rule from
// spec.md §4.3: negative indices are offsets from the end, `-1` being the
// last field. Returns an error if the resolved index is still out of
// range after wrapping.
func resolveIndex(idx, length int) (int, error) {
	if length == 0 {
		return 0, errEmptyRecord
	}
	resolved := idx
	if resolved < 0 {
		resolved += length
	}
	if resolved < 0 || resolved >= length {
		return 0, &FieldOutOfRangeError{Index: idx, Length: length}
	}
	return resolved, nil
}

// normalizeURL parses raw as an absolute URL and re-serializes it via the
// parser's canonical form. The re-serialized form is the key used for
// hashing.
func normalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", &URLParseError{Raw: raw, Err: err}
	}
	if !parsed.IsAbs() {
		return "", &URLParseError{Raw: raw, Err: errors.New("url is not absolute")}
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	return parsed.String(), nil
}

// PathFor computes the deterministic content-addressed path for a
// normalized URL under root, per the §3 path invariant:
// root/XX/YY/ZZZZZZZZZZZZ.ext, where ZZZZZZZZZZZZ is the 12-character
// lowercase hex of the first 6 bytes of MD5(url) and XX, YY are its first
// and second character pairs.
func PathFor(normalizedURL, root, extension string) string {
	sum := md5.Sum([]byte(normalizedURL))
	hash := hex.EncodeToString(sum[:6])
	name := hash + "." + extension
	return filepath.Join(root, hash[0:2], hash[2:4], name)
}

// FromRecord builds an Item from a Record, given the id-field indices, the
// url-field index, the output root, and the output extension. An empty
// idFields list yields id = "n/a".
func FromRecord(record Record, idFields []int, urlField int, root, extension string) (Item, error) {
	length := len(record)

	var idParts []string
	if len(idFields) == 0 {
		idParts = []string{"n/a"}
	} else {
		idParts = make([]string, 0, len(idFields))
		for _, idx := range idFields {
			resolved, err := resolveIndex(idx, length)
			if err != nil {
				return Item{}, err
			}
			idParts = append(idParts, record[resolved])
		}
	}

	urlIdx, err := resolveIndex(urlField, length)
	if err != nil {
		return Item{}, err
	}

	normalized, err := normalizeURL(record[urlIdx])
	if err != nil {
		return Item{}, err
	}

	return Item{
		ID:   strings.Join(idParts, "$"),
		URL:  normalized,
		Path: PathFor(normalized, root, extension),
	}, nil
}
