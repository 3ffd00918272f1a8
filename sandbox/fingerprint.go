package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

func fingerprintFile(path string) (fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fingerprint{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint{}, err
	}

	return fingerprint{
		Hash:  hex.EncodeToString(h.Sum(nil)),
		MTime: info.ModTime(),
		Size:  info.Size(),
	}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
