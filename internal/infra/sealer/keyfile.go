package sealer

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of the master key stored in a key file.
const KeySize = 32

// ErrKeyFilePermissions is returned when a key file is readable by
// anyone other than its owner.
var ErrKeyFilePermissions = errors.New("sealer: key file permissions too open")

// LoadOrCreateKey reads the master key at path, creating the file with
// fresh random bytes when it does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := loadKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("sealer: generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("sealer: create key dir: %w", err)
	}

	// O_EXCL so that two processes racing on first use agree on one key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return loadKey(path)
		}
		return nil, fmt.Errorf("sealer: create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(key); err != nil {
		return nil, fmt.Errorf("sealer: write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sealer: sync key file: %w", err)
	}

	return key, nil
}

func loadKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %o", ErrKeyFilePermissions, path, info.Mode().Perm())
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealer: read key file: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealer: key file %s has %d bytes, want %d", path, len(key), KeySize)
	}
	return key, nil
}

// DeriveKey derives a purpose-bound subkey from a master key using
// HKDF-SHA256.
func DeriveKey(master []byte, purpose string, length int) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("sealer: empty master key")
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(purpose)), out); err != nil {
		return nil, fmt.Errorf("sealer: derive key: %w", err)
	}
	return out, nil
}

// FromKeyFile loads (or creates) the key file and returns the platform
// cipher keyed for purpose.
func FromKeyFile(path, purpose string) (Cipher, error) {
	master, err := LoadOrCreateKey(path)
	if err != nil {
		return nil, err
	}
	defer Zero(master)

	sub, err := DeriveKey(master, purpose, KeySize)
	if err != nil {
		return nil, err
	}
	defer Zero(sub)

	return New(sub)
}

// Zero overwrites key material.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
