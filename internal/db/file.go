package db

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptError means the file exists but does not decode as the expected shape.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// FileStore keeps one JSON document on disk. Writes go to a temp file in the
// same directory and are renamed over the canonical path, so readers only ever
// see the previous or the new document.
type FileStore struct {
	path  string
	perm  os.FileMode
	write func(f *os.File, data []byte) error
}

func NewFileStore(path string, perm os.FileMode) *FileStore {
	return &FileStore{
		path: path,
		perm: perm,
		write: func(f *os.File, data []byte) error {
			_, err := f.Write(data)
			return err
		},
	}
}

func (s *FileStore) Path() string { return s.path }

// LoadJSON decodes the file into v. found is false when the file does not exist.
func (s *FileStore) LoadJSON(v any) (found bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, &CorruptError{Path: s.path, Err: err}
	}
	return true, nil
}

func (s *FileStore) SaveJSON(v any) error {
	data, err := marshalPretty(v)
	if err != nil {
		return &PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Op: "create temp", Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()

	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistenceError{Op: op, Path: s.path, Err: err}
	}

	if err := tmp.Chmod(s.perm); err != nil {
		return fail("chmod", err)
	}
	if err := s.write(tmp, data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "close", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &PersistenceError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &PersistenceError{Op: "remove", Path: s.path, Err: err}
	}
	return nil
}

// marshalPretty indents with two spaces and leaves non-ASCII and HTML characters as-is.
func marshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
