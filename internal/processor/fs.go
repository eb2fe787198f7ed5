package processor

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/datallboy/hlsget/internal/domain"
)

var (
	validName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validExt  = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,5}$`)
)

const fallbackSegmentExt = ".ts"

// ValidateName checks an output name before anything touches the network.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: invalid output name %q: only letters, digits, '_' and '-' are allowed", domain.ErrValidation, name)
	}
	return nil
}

// segmentFileName builds a zero-padded name so lexical order matches index order.
func segmentFileName(seg domain.Segment, total int) string {
	width := max(5, len(strconv.Itoa(max(total-1, 0))))
	return fmt.Sprintf("segment_%0*d%s", width, seg.Index, segmentExt(seg.URI))
}

// segmentExt takes the extension from the URI path, ignoring any query string.
func segmentExt(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return fallbackSegmentExt
	}
	ext := path.Ext(u.Path)
	if !validExt.MatchString(ext) {
		return fallbackSegmentExt
	}
	return ext
}

// moveCrossDevice handles moving files between different mount points/filesystems
func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	// Explicitly close before renaming and deleting the source
	src.Close()
	if err := dst.Close(); err != nil {
		os.Remove(tempDest)
		return err
	}

	if err := os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}

	// Remove the original file only after copy success
	return os.Remove(sourcePath)
}

// moveFile handles the logic of moving a file, falling back to cross-device copy if rename fails.
func moveFile(source, dest string) error {
	// Try simple rename first
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}

	// If it fails (likely cross-device), use our helper
	return moveCrossDevice(source, dest)
}
