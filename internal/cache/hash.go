package cache

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// NewDigest returns the hash used for artifact content hashes.
// MD5 keeps the hex output identical to what existing clients compare against.
func NewDigest() hash.Hash {
	return md5.New()
}

// HashReader streams r through the artifact digest and returns the lower-case hex sum
func HashReader(r io.Reader) (string, error) {
	h := NewDigest()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile creates a hash of a file's content
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return HashReader(f)
}
