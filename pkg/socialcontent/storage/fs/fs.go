package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// Backend is a go-billy filesystem implementation of the
// socialcontent.BlobStore interface
type Backend struct {
	fs billy.Filesystem
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a filesystem storage backend rooted at config.BaseDir
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return NewWithFilesystem(osfs.New(config.BaseDir)), nil
}

// NewWithFilesystem creates a backend over any billy filesystem, such as memfs
func NewWithFilesystem(fsys billy.Filesystem) *Backend {
	return &Backend{fs: fsys}
}

var _ socialcontent.BlobStore = (*Backend)(nil)

const tempPrefix = ".upload-"

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*socialcontent.ObjectMeta, error) {
	name, err := cleanKey(objectKey)
	if err != nil {
		return nil, err
	}
	info, err := b.fs.Stat(name)
	if os.IsNotExist(err) {
		return nil, notFound(objectKey)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	contentType := "application/octet-stream"
	if file, err := b.fs.Open(name); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil || errors.Is(err, io.EOF) {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &socialcontent.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
		Metadata:    map[string]string{"content_type": contentType},
	}, nil
}

// UploadWithParams writes content to a temporary file next to the key and
// renames it into place, so readers of an existing key see either the old or
// the new bytes. The MIME type is not stored; it is detected on read.
func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params socialcontent.UploadParams) error {
	name, err := cleanKey(params.ObjectKey)
	if err != nil {
		return err
	}
	dir := path.Dir(name)
	if dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp, err := b.fs.TempFile(dir, tempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		b.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := b.fs.Rename(tmp.Name(), name); err != nil {
		b.fs.Remove(tmp.Name())
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Download downloads content directly from the filesystem
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	name, err := cleanKey(objectKey)
	if err != nil {
		return nil, err
	}
	file, err := b.fs.Open(name)
	if os.IsNotExist(err) {
		return nil, notFound(objectKey)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	name, err := cleanKey(objectKey)
	if err != nil {
		return err
	}
	if _, err := b.fs.Stat(name); os.IsNotExist(err) {
		return notFound(objectKey)
	}
	if err := b.fs.Remove(name); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// cleanKey keeps keys inside the backend root.
func cleanKey(objectKey string) (string, error) {
	name := path.Clean("/" + strings.TrimSpace(objectKey))
	if name == "/" {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return strings.TrimPrefix(name, "/"), nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", socialcontent.ErrBlobNotFound, key)
}
