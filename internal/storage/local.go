package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const metaSuffix = ".meta.json"

// Local stores artifacts as files under a root directory. References are
// absolute file paths.
type Local struct {
	root string
}

// NewLocal creates the root directory if absent and returns a Local backend.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) Reference(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := l.Reference(key)
	if err := l.checkRef(path); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", key, err)
	}

	// The sidecar goes first so a visible artifact always has its metadata.
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("marshal metadata for %s: %w", key, err)
		}
		if err := writeFileAtomic(path+metaSuffix, raw); err != nil {
			return "", fmt.Errorf("write metadata for %s: %w", key, err)
		}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return path, nil
}

func (l *Local) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.checkRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

func (l *Local) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := l.checkRef(ref); err != nil {
		return false, err
	}
	_, err := os.Stat(ref)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", ref, err)
}

func (l *Local) Stat(ctx context.Context, ref string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.checkRef(ref); err != nil {
		return nil, err
	}
	fi, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}

	info := &ObjectInfo{Ref: ref, Size: fi.Size(), ModTime: fi.ModTime(), Metadata: Metadata{}}
	raw, err := os.ReadFile(ref + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &info.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", ref, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read metadata for %s: %w", ref, err)
	}
	return info, nil
}

func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.checkRef(ref); err != nil {
		return err
	}
	if err := os.Remove(ref); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	if err := os.Remove(ref + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove metadata for %s: %w", ref, err)
	}
	return nil
}

// URL returns a file:// URL; local files do not expire.
func (l *Local) URL(_ context.Context, ref string, _ time.Duration) (string, error) {
	if err := l.checkRef(ref); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(ref)}).String(), nil
}

// Ping verifies the root is a writable directory.
func (l *Local) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(l.root, ".ping-*")
	if err != nil {
		return fmt.Errorf("storage root %s not writable: %w", l.root, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// checkRef rejects references outside the root.
func (l *Local) checkRef(ref string) error {
	rel, err := filepath.Rel(l.root, ref)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("reference %q is outside storage root: %w", ref, ErrInvalidReference)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
