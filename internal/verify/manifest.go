package verify

import (
	"fmt"
	"io"
	"os"
	"time"
)

// WriteManifest writes digests as a TOML document to path, one [[files]]
// table per entry. When keyID is non-empty, a [signature] table holding
// keyID and signature is written ahead of the file tables.
func WriteManifest(path string, root string, digests []FileDigest, keyID, signature string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeManifest(f, root, digests, keyID, signature)
}

func writeManifest(w io.Writer, root string, digests []FileDigest, keyID, signature string) error {
	if _, err := fmt.Fprintf(w, "# Generated on: %s\n\n", time.Now().Format("2006-01-02 15:04:05")); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "[store]\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "root = %q\n", root); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "total_files = %d\n\n", len(digests)); err != nil {
		return err
	}

	if keyID != "" {
		if _, err := fmt.Fprintf(w, "[signature]\n"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "gpg_key_id = %q\n", keyID); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "gpg_signature = \"\"\"\n%s\"\"\"\n\n", signature); err != nil {
			return err
		}
	}

	for _, d := range digests {
		if _, err := fmt.Fprintf(w, "[[files]]\n"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "path = %q\n", d.RelPath); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "size = %d\n", d.Size); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "modified = %q\n", d.ModTime.Format("2006-01-02 15:04:05")); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "blake3 = %q\n", d.Blake3); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "kangaroo12 = %q\n", d.KangarooTwelve); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "sha3_256 = %q\n", d.SHA3_256); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "blake2b = %q\n", d.Blake2b); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "sha512 = %q\n", d.SHA512); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "whirlpool = %q\n", d.Whirlpool); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "ripemd160 = %q\n", d.RIPEMD160); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "xxh3 = %q\n", d.XXH3); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "sha256 = %q\n", d.SHA256); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "xxhash64 = %q\n", d.XXHash64); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "murmur3 = %q\n\n", d.Murmur3); err != nil {
			return err
		}
	}
	return nil
}

// DigestsToSign concatenates the store root and every file's path and
// primary hashes (blake3, sha256) into the byte string that gets
// OpenPGP-signed. Sizes, timestamps and the other digests in the manifest
// are not covered by the signature.
func DigestsToSign(root string, digests []FileDigest) []byte {
	var b []byte
	b = append(b, []byte(fmt.Sprintf("root: %s\n", root))...)
	for _, d := range digests {
		b = append(b, []byte(fmt.Sprintf("%s blake3=%s sha256=%s\n", d.RelPath, d.Blake3, d.SHA256))...)
	}
	return b
}
