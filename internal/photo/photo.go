// Package photo stores uploaded registration photos on local disk and
// resolves stored references back to files and public URLs.
package photo

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the upload ceiling (5 MiB).
const DefaultMaxBytes int64 = 5 << 20

// RefPrefix is the leading segment of every stored photo reference.
const RefPrefix = "uploads"

var (
	ErrMissing  = errors.New("photo is required")
	ErrNotImage = errors.New("only image files are allowed")
	ErrTooLarge = errors.New("photo exceeds the upload size limit")
)

// Store writes photos under a single uploads directory.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewStore creates a photo store rooted at dir. A non-positive maxBytes
// falls back to DefaultMaxBytes.
func NewStore(dir string, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}
}

// Dir returns the directory photos are written to.
func (s *Store) Dir() string { return s.dir }

// MaxBytes returns the per-file ceiling.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save checks the declared and sniffed content type and the size of fh,
// writes it under a unique name and returns the uploads-relative reference.
func (s *Store) Save(fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", ErrMissing
	}
	if fh.Size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, fh.Size)
	}
	if !isImage(fh.Header.Get("Content-Type")) {
		return "", fmt.Errorf("%w: declared %q", ErrNotImage, fh.Header.Get("Content-Type"))
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("photo: open upload: %w", err)
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("photo: sniff content: %w", err)
	}
	if !isImage(mt.String()) {
		return "", fmt.Errorf("%w: content is %s", ErrNotImage, mt.String())
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("photo: rewind upload: %w", err)
	}

	return s.write(src, fh.Filename)
}

func (s *Store) write(src io.Reader, original string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("photo: create uploads dir: %w", err)
	}

	var (
		f    *os.File
		name string
		err  error
	)
	for attempt := 0; attempt < 3; attempt++ {
		name = s.uniqueName(original)
		f, err = os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("photo: create file: %w", err)
	}

	full := f.Name()
	n, err := io.Copy(f, io.LimitReader(src, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("photo: write file: %w", err)
	}
	return path.Join(RefPrefix, name), nil
}

// uniqueName is {unix millis}-{random 0..1e9}-{original base name}.
func (s *Store) uniqueName(original string) string {
	return fmt.Sprintf("%d-%d-%s", s.now().UnixMilli(), rand.Int64N(1e9), baseName(original))
}

// Remove deletes the file behind ref. A missing file is not an error.
func (s *Store) Remove(ref string) error {
	err := os.Remove(filepath.Join(s.dir, Name(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Resolve returns the on-disk path of ref and whether a regular file exists
// there. Photos deleted out of band resolve to ok == false.
func (s *Store) Resolve(ref string) (string, bool) {
	name := Name(ref)
	if name == "" {
		return "", false
	}
	full := filepath.Join(s.dir, name)
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return full, false
	}
	return full, true
}

// Name returns the stored file name of ref, accepting either path separator.
func Name(ref string) string {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, `\`, "/"))
	if ref == "" {
		return ""
	}
	name := path.Base(ref)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// URL maps ref onto the public /uploads/ path.
func URL(ref string) string {
	name := Name(ref)
	if name == "" {
		return ""
	}
	return "/" + RefPrefix + "/" + name
}

func baseName(original string) string {
	name := Name(original)
	if name == "" || name == ".." {
		return "photo"
	}
	return name
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
