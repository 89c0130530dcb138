// Package verify recomputes content digests for every file under the
// image store and writes a manifest, optionally OpenPGP-signed.
package verify

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudflare/circl/xof/k12"
	"github.com/jzelinskie/whirlpool"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// FileDigest holds every content digest computed for one file under the
// store, plus its path relative to the store root.
type FileDigest struct {
	RelPath        string
	Size           int64
	ModTime        time.Time
	KangarooTwelve string
	Blake3         string
	SHA3_256       string
	Blake2b        string
	SHA512         string
	Whirlpool      string
	RIPEMD160      string
	XXH3           string
	SHA256         string
	XXHash64       string
	Murmur3        string
}

// HashFile streams path through every configured digest algorithm in a
// single pass and returns the result. relPath is stored verbatim in the
// result for manifest purposes.
func HashFile(path, relPath string) (FileDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileDigest{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileDigest{}, err
	}

	sha256Hasher := sha256.New()
	whirlpoolHasher := whirlpool.New()
	ripemd160Hasher := ripemd160.New()
	sha3Hasher := sha3.New256()
	blake2bHasher, err := blake2b.New256(nil)
	if err != nil {
		return FileDigest{}, err
	}
	blake3Hasher := blake3.New(32, nil)
	sha512Hasher := sha512.New()
	xxh64Hasher := xxhash.New()
	murmur3Hasher := murmur3.New128()
	k12Hasher := k12.NewDraft10(nil)
	xxh3Hasher := xxh3.New()

	w := io.MultiWriter(
		sha256Hasher, whirlpoolHasher, ripemd160Hasher, sha3Hasher,
		blake2bHasher, blake3Hasher, sha512Hasher, xxh64Hasher,
		murmur3Hasher, k12Hasher, xxh3Hasher,
	)
	if _, err := io.Copy(w, f); err != nil {
		return FileDigest{}, err
	}

	k12Output := make([]byte, 32)
	if _, err := k12Hasher.Read(k12Output); err != nil {
		return FileDigest{}, err
	}

	return FileDigest{
		RelPath:        relPath,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
		KangarooTwelve: hex.EncodeToString(k12Output),
		Blake3:         hex.EncodeToString(blake3Hasher.Sum(nil)),
		SHA3_256:       hex.EncodeToString(sha3Hasher.Sum(nil)),
		Blake2b:        hex.EncodeToString(blake2bHasher.Sum(nil)),
		SHA512:         hex.EncodeToString(sha512Hasher.Sum(nil)),
		Whirlpool:      hex.EncodeToString(whirlpoolHasher.Sum(nil)),
		RIPEMD160:      hex.EncodeToString(ripemd160Hasher.Sum(nil)),
		XXH3:           fmt.Sprintf("%x", xxh3Hasher.Sum64()),
		SHA256:         hex.EncodeToString(sha256Hasher.Sum(nil)),
		XXHash64:       hex.EncodeToString(xxh64Hasher.Sum(nil)),
		Murmur3:        hex.EncodeToString(murmur3Hasher.Sum(nil)),
	}, nil
}

// WalkStore hashes every regular file under root and returns the results
// sorted by relative path, for deterministic manifest output.
func WalkStore(root string) ([]FileDigest, error) {
	var out []FileDigest
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		d, err := HashFile(path, rel)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", rel, err)
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}
