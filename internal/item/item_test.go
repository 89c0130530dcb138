package item

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"
)

func TestPathForInvariant(t *testing.T) {
	u := "http://x/a.png"
	root := "/out"
	got := PathFor(u, root, "webp")

	sum := md5.Sum([]byte(u))
	hash := hex.EncodeToString(sum[:6])
	want := filepath.Join(root, hash[0:2], hash[2:4], hash+".webp")

	if got != want {
		t.Fatalf("PathFor(%q) = %q, want %q", u, got, want)
	}
	if got2 := PathFor(u, root, "webp"); got2 != got {
		t.Fatalf("PathFor is not deterministic across calls")
	}
}

func TestFromRecordEmptyIDFields(t *testing.T) {
	rec := Record{"id001", "http://x/a.png"}
	it, err := FromRecord(rec, nil, 1, "/out", "webp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.ID != "n/a" {
		t.Fatalf("expected id n/a, got %q", it.ID)
	}
	if it.URL != "http://x/a.png" {
		t.Fatalf("unexpected normalized url: %q", it.URL)
	}
}

func TestFromRecordJoinsIDFields(t *testing.T) {
	rec := Record{"a", "b", "http://x/y"}
	it, err := FromRecord(rec, []int{0, 1}, 2, "/out", "jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.ID != "a$b" {
		t.Fatalf("expected id a$b, got %q", it.ID)
	}
}

func TestNegativeFieldIndexWraps(t *testing.T) {
	rec := Record{"a", "b", "http://x/y"}
	it, err := FromRecord(rec, []int{0}, -1, "/out", "jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.URL != "http://x/y" {
		t.Fatalf("negative url field did not resolve to last field: %q", it.URL)
	}
}

func TestResolveIndexTable(t *testing.T) {
	cases := []struct {
		idx, length, want int
		wantErr           bool
	}{
		{0, 3, 0, false},
		{2, 3, 2, false},
		{-1, 3, 2, false},
		{-3, 3, 0, false},
		{3, 3, 0, true},
		{-4, 3, 0, true},
	}
	for _, c := range cases {
		got, err := resolveIndex(c.idx, c.length)
		if c.wantErr {
			if err == nil {
				t.Errorf("resolveIndex(%d, %d): expected error, got %d", c.idx, c.length, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolveIndex(%d, %d): unexpected error: %v", c.idx, c.length, err)
			continue
		}
		if got != c.want {
			t.Errorf("resolveIndex(%d, %d) = %d, want %d", c.idx, c.length, got, c.want)
		}
	}
}

func TestFieldOutOfRangeIsTypedError(t *testing.T) {
	rec := Record{"only-one"}
	_, err := FromRecord(rec, []int{5}, 0, "/out", "jpg")
	var target *FieldOutOfRangeError
	if !errors.As(err, &target) {
		t.Fatalf("expected *FieldOutOfRangeError, got %T: %v", err, err)
	}
}

func TestBadURLIsTypedError(t *testing.T) {
	rec := Record{"id", "not a url"}
	_, err := FromRecord(rec, []int{0}, 1, "/out", "jpg")
	var target *URLParseError
	if !errors.As(err, &target) {
		t.Fatalf("expected *URLParseError, got %T: %v", err, err)
	}
}
