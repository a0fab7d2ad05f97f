// Package fsstore provides the file persistence primitives used by the
// per-chat state stores: tolerant JSON reads, atomic JSON writes, and
// JSONL appends. All chat state on disk goes through this package so the
// durability rules live in one place.
package fsstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

var (
	ErrInvalidPath  = errors.New("fsstore: invalid path")
	ErrDecodeFailed = errors.New("fsstore: decode failed")
	ErrWriteFailed  = errors.New("fsstore: write failed")
)

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

func EnsureDir(path string) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(normalized, defaultDirPerm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", normalized, err)
	}
	return nil
}

// ReadJSON decodes path into out. A missing or empty file reports found=false
// with a nil error; a file that exists but does not decode reports
// ErrDecodeFailed so callers can distinguish absence from corruption.
func ReadJSON(path string, out any) (found bool, err error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(normalized)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read json %s: %w", normalized, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrDecodeFailed, normalized, err)
	}
	return true, nil
}

// WriteJSON writes v to path atomically: encode, write to a temp file in the
// same directory, fsync, rename. Readers never observe a partial document.
func WriteJSON(path string, v any) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWriteFailed, normalized, err)
	}
	data = append(data, '\n')
	return writeAtomic(normalized, data)
}

func writeAtomic(path string, content []byte) error {
	parent := filepath.Dir(path)
	if err := EnsureDir(parent); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(parent, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrWriteFailed, path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		return fmt.Errorf("%w: chmod temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename temp for %s: %v", ErrWriteFailed, path, err)
	}

	// Best effort directory sync for durability; ignore failures.
	if dirFD, err := os.Open(parent); err == nil {
		_ = dirFD.Sync()
		_ = dirFD.Close()
	}
	return nil
}

// AppendJSONLine appends v as a single JSON line. Appends are not atomic the
// way WriteJSON is; the interaction log tolerates a torn final line.
func AppendJSONLine(path string, v any) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(normalized)); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWriteFailed, normalized, err)
	}
	f, err := os.OpenFile(normalized, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrWriteFailed, normalized, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrWriteFailed, normalized, err)
	}
	return nil
}

func ReadText(path string) (string, bool, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(normalized)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read text %s: %w", normalized, err)
	}
	return string(data), true, nil
}

func WriteText(path string, content string) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}
	return writeAtomic(normalized, []byte(content))
}
