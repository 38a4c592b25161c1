package attachment

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
)

var errSizeLimit = errors.New("decompressed size exceeds limit")

// readLimited reads r up to limit bytes and fails if there is more
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", errSizeLimit, limit)
	}
	return content, nil
}

// ReadGZ decompresses the whole gzip stream
func ReadGZ(content []byte, limit int64) ([]byte, error) {
	gz, err := pgzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("could not gzip read: %w", err)
	}
	defer gz.Close()

	xmlContent, err := readLimited(gz, limit)
	if err != nil {
		return nil, fmt.Errorf("could not read: %w", err)
	}
	return xmlContent, nil
}

// ReadZIP returns the content of the first file in the archive.
// Directories are skipped and further files are ignored.
func ReadZIP(content []byte, limit int64) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("could not open zip: %w", err)
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		x, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("could not open file %s inside zip: %w", f.Name, err)
		}
		defer x.Close()
		xmlContent, err := readLimited(x, limit)
		if err != nil {
			return nil, fmt.Errorf("could not read file %s inside zip: %w", f.Name, err)
		}
		// only use first file in the zip file
		return xmlContent, nil
	}
	return nil, errors.New("no valid file found within zip archive")
}
