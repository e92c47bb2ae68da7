package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modestbitboard/breadbox"
)

// uploadChunkSize bounds the copy buffer so large uploads never sit in
// memory whole.
const uploadChunkSize = 64 * 1024

// ContentTypeError reports a declared upload content type that does not
// match the type inferred from the target filename.
type ContentTypeError struct {
	Expected string
	Got      string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("wrong content type: expected %s, got %s", e.Expected, e.Got)
}

// DownloadFile describes a branch file resolved for delivery.
type DownloadFile struct {
	// Path is the resolved filesystem path, symlinks followed.
	Path string
	// Name is the delivery filename presented to the client.
	Name string
	Size int64
}

// UploadResult reports a completed branch file upload.
type UploadResult struct {
	Size    int64
	Elapsed time.Duration
	Digest  string
}

// Download resolves a branch file for delivery, following symlinks. The
// delivery name is <collection>-<id>.<ext> when the stored name already
// carries the collection name, <collection>-<id>-<filename> otherwise.
// Returns breadbox.ErrNotFound when the file is absent.
func (s *Store) Download(id int, branch, filename string) (DownloadFile, error) {
	if !breadbox.IsValidName(branch) || !breadbox.IsValidFilename(filename) {
		return DownloadFile{}, breadbox.ErrNotFound
	}

	target := filepath.Join(s.branchPath(id, branch), filename)

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DownloadFile{}, breadbox.ErrNotFound
		}
		return DownloadFile{}, fmt.Errorf("download %d/%s/%s: %w", id, branch, filename, err)
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return DownloadFile{}, breadbox.ErrNotFound
	}

	return DownloadFile{
		Path: resolved,
		Name: s.deliveryName(id, filename),
		Size: info.Size(),
	}, nil
}

// Upload streams content into a branch file. The declared content type must
// match the MIME type inferred from the filename, and the item must already
// exist. The write goes through a temp file renamed into place, so a failed
// or rejected upload leaves no partial file behind.
func (s *Store) Upload(id int, branch, filename, contentType string, content io.Reader) (UploadResult, error) {
	if !breadbox.IsValidName(branch) {
		return UploadResult{}, fmt.Errorf("upload: %w: branch %q", breadbox.ErrInvalidInput, branch)
	}
	if !breadbox.IsValidFilename(filename) {
		return UploadResult{}, fmt.Errorf("upload: %w: filename %q", breadbox.ErrInvalidInput, filename)
	}

	expected := InferContentType(filename)
	declared := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		declared = parsed
	}
	if declared != expected {
		return UploadResult{}, &ContentTypeError{Expected: expected, Got: declared}
	}

	if !s.CheckItem(id) {
		return UploadResult{}, breadbox.ErrNotFound
	}

	branchPath := s.branchPath(id, branch)
	if err := os.MkdirAll(branchPath, 0o750); err != nil {
		return UploadResult{}, fmt.Errorf("upload %d/%s/%s: %w", id, branch, filename, err)
	}

	start := time.Now()

	tmpPath := filepath.Join(branchPath, tmpFileName())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload %d/%s/%s: open temp file: %w", id, branch, filename, err)
	}

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil {
				slog.Warn("failed to remove temp upload file", "path", tmpPath, "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	written, err := io.CopyBuffer(io.MultiWriter(h, tmp), content, make([]byte, uploadChunkSize))
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload %d/%s/%s: %w", id, branch, filename, err)
	}

	if err := tmp.Sync(); err != nil {
		return UploadResult{}, fmt.Errorf("upload %d/%s/%s: sync: %w", id, branch, filename, err)
	}
	if err := tmp.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("upload %d/%s/%s: close: %w", id, branch, filename, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(branchPath, filename)); err != nil {
		return UploadResult{}, fmt.Errorf("upload %d/%s/%s: rename: %w", id, branch, filename, err)
	}
	success = true

	return UploadResult{
		Size:    written,
		Elapsed: time.Since(start),
		Digest:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// ListFiles returns the sorted names of regular files (symlinks followed) in
// an item's branch. A missing branch directory yields an empty list; a
// missing item is breadbox.ErrNotFound.
func (s *Store) ListFiles(id int, branch string) ([]string, error) {
	if !s.CheckItem(id) {
		return nil, breadbox.ErrNotFound
	}
	if !breadbox.IsValidName(branch) {
		return nil, fmt.Errorf("list files: %w: branch %q", breadbox.ErrInvalidInput, branch)
	}

	entries, err := os.ReadDir(s.branchPath(id, branch))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list files %d/%s: %w", id, branch, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		resolved, evalErr := filepath.EvalSymlinks(filepath.Join(s.branchPath(id, branch), entry.Name()))
		if evalErr != nil {
			continue
		}
		if info, statErr := os.Stat(resolved); statErr == nil && info.Mode().IsRegular() {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}

// InferContentType returns the MIME type implied by a filename's extension,
// without parameters. Unknown extensions map to application/octet-stream.
func InferContentType(filename string) string {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		return "application/octet-stream"
	}
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	return contentType
}

func (s *Store) deliveryName(id int, filename string) string {
	parts := strings.Split(filename, ".")
	if parts[0] == s.name {
		return fmt.Sprintf("%s-%d.%s", s.name, id, parts[len(parts)-1])
	}
	return fmt.Sprintf("%s-%d-%s", s.name, id, filename)
}

func tmpFileName() string {
	return fmt.Sprintf(".t%s", uuid.New().String())
}
