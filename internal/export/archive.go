package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"

	"registrar/internal/photo"
	"registrar/internal/registration"
)

const (
	// ArchiveFilename is the attachment name of the photo archive.
	ArchiveFilename = "registration-photos.zip"
	// ArchiveContentType is the zip MIME type.
	ArchiveContentType = "application/zip"
)

// PhotoResolver maps a stored photo reference to a file on disk.
type PhotoResolver interface {
	Resolve(ref string) (path string, ok bool)
}

// ArchiveStats counts what went into an archive.
type ArchiveStats struct {
	Added   int
	Skipped int
}

// EntryName is {first_name}-{last_name}-{stored file name}.
func EntryName(r registration.Registration) string {
	return fmt.Sprintf("%s-%s-%s", r.FirstName, r.LastName, photo.Name(r.Photo))
}

// WriteArchive streams a zip of every existing photo to w at maximum
// compression. Records whose photo is missing are skipped silently. On a
// read or write failure the archive is left unfinalized so the receiver
// cannot mistake it for a complete one.
func WriteArchive(w io.Writer, records []registration.Registration, photos PhotoResolver) (ArchiveStats, error) {
	var stats ArchiveStats
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, r := range records {
		added, err := addPhoto(zw, r, photos)
		if err != nil {
			return stats, err
		}
		if added {
			stats.Added++
		} else {
			stats.Skipped++
		}
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("finalize archive: %w", err)
	}
	return stats, nil
}

func addPhoto(zw *zip.Writer, r registration.Registration, photos PhotoResolver) (bool, error) {
	if r.Photo == "" {
		return false, nil
	}
	path, ok := photos.Resolve(r.Photo)
	if !ok {
		return false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		// removed between Resolve and Open
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, fmt.Errorf("zip header %s: %w", path, err)
	}
	hdr.Name = EntryName(r)
	hdr.Method = zip.Deflate

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return false, fmt.Errorf("zip entry %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return false, fmt.Errorf("zip copy %s: %w", hdr.Name, err)
	}
	return true, nil
}
