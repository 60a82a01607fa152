package clients

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StoredFile describes an export written to a file store.
type StoredFile struct {
	Name string
	URL  string
}

type StorageClient struct {
	BaseDir      string // directory holding generated exports
	PublicPrefix string // URL prefix where files are served, e.g. "/files"
	BaseURL      string // optional scheme+host[:port] used to build absolute URLs
}

// NewLocalStorage creates a storage client; baseDir will be created if missing.
func NewLocalStorage(baseDir, publicPrefix, baseURL string) (*StorageClient, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if publicPrefix == "" {
		publicPrefix = "/files"
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure storage dir %q: %w", baseDir, err)
	}

	return &StorageClient{BaseDir: baseDir, PublicPrefix: publicPrefix, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes data under a collision-free name derived from fileName.
func (s *StorageClient) Store(ctx context.Context, fileName string, data []byte) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return StoredFile{}, fmt.Errorf("failed to generate file name: %w", err)
	}
	final := fmt.Sprintf("%s_%s", hex.EncodeToString(randBytes), filepath.Base(fileName))

	path := filepath.Join(s.BaseDir, final)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return StoredFile{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return StoredFile{}, fmt.Errorf("failed to finalize file: %w", err)
	}

	return StoredFile{Name: final, URL: s.GetURL(final)}, nil
}

// GetURL returns the public URL of a stored file, absolute when BaseURL is configured.
func (s *StorageClient) GetURL(fileName string) string {
	prefix := "/" + strings.Trim(s.PublicPrefix, "/")
	if prefix == "/" {
		prefix = "/files"
	}
	return fmt.Sprintf("%s%s/%s", s.BaseURL, prefix, fileName)
}

// Resolve maps a public file name back to its path on disk. ok is false for names that
// try to leave BaseDir or do not exist.
func (s *StorageClient) Resolve(fileName string) (path string, ok bool) {
	if fileName == "" || fileName != filepath.Base(fileName) || strings.HasPrefix(fileName, ".") {
		return "", false
	}
	path = filepath.Join(s.BaseDir, fileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// OriginalName strips the random prefix Store adds.
func OriginalName(fileName string) string {
	if idx := strings.IndexByte(fileName, '_'); idx >= 0 {
		return fileName[idx+1:]
	}
	return fileName
}

// CleanupOlderThan deletes files older than d in the base dir.
func (s *StorageClient) CleanupOlderThan(d time.Duration) error {
	now := time.Now()
	return filepath.WalkDir(s.BaseDir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) > d {
			_ = os.Remove(path)
		}
		return nil
	})
}
