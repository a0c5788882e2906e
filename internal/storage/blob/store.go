package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var ErrNotFound = errors.New("blob not found")

// Ref points at a stored payload. Key is the hex sha256 of the content, so
// identical uploads share one blob and the record store never carries the
// bytes themselves.
type Ref struct {
	Key  string
	Size int64
}

// Store is a content-addressed blob store on the local filesystem. Blobs are
// fanned out under two-level directories keyed by digest prefix, and writes go
// through a temp file plus rename so readers never observe partial content.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob store: dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put streams r into the store and returns its content-addressed reference.
func (s *Store) Put(ctx context.Context, r io.Reader) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return Ref{}, fmt.Errorf("blob temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Ref{}, fmt.Errorf("blob write: %w", err)
	}

	key := hex.EncodeToString(hasher.Sum(nil))
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return Ref{}, fmt.Errorf("blob fanout dir: %w", err)
	}

	if _, err := os.Stat(target); err == nil {
		// Content already stored; the temp copy is redundant.
		return Ref{Key: key, Size: size}, nil
	}

	if err := os.Rename(tmpName, target); err != nil {
		return Ref{}, fmt.Errorf("blob publish: %w", err)
	}
	return Ref{Key: key, Size: size}, nil
}

// Open returns a reader for the blob. The caller closes it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validKey(key) {
		return nil, ErrNotFound
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob open: %w", err)
	}
	return f, nil
}

// Delete removes a blob. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return nil
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob delete: %w", err)
	}
	return nil
}

// Walk visits every stored blob with its key and modification time. Temp
// files from in-flight uploads are skipped.
func (s *Store) Walk(ctx context.Context, fn func(key string, modTime time.Time) error) error {
	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !validKey(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(d.Name(), info.ModTime())
	})
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key[:2], key[2:4], key)
}

// validKey guards path construction against non-digest input.
func validKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
