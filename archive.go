package mnists

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
)

// extractMember streams one member file out of a cached zip archive into its
// own cache path, verifying the member checksum in-flight and installing
// atomically. Members are matched by base name: EMNIST's gzip.zip nests its
// files under an internal directory.
func (f *fetcher) extractMember(archivePath string, res Resource, dst string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFormat, filepath.Base(archivePath), err)
	}
	defer zr.Close()

	member := findMember(&zr.Reader, res.Filename)
	if member == nil {
		return fmt.Errorf("%w: %s: no member named %s", ErrFormat, filepath.Base(archivePath), res.Filename)
	}

	mr, err := member.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFormat, res.Filename, err)
	}
	defer mr.Close()

	var r io.Reader = &zipMemberReader{r: mr, name: res.Filename}
	r = newIntegrityReader(r, res.MD5, res.Filename)

	n, err := f.storage.installStream(dst, r)
	if err != nil {
		return err
	}
	if f.cfg.logger != nil {
		f.cfg.logger.Info("extracted", "file", res.Filename, "bytes", n)
	}
	return nil
}

// findMember locates a zip member by base name. Zip member names always use
// forward slashes.
func findMember(zr *zip.Reader, filename string) *zip.File {
	for _, zf := range zr.File {
		if path.Base(zf.Name) == filename {
			return zf
		}
	}
	return nil
}

// zipMemberReader classifies failures while decompressing a member as format
// errors so they are not mistaken for local storage failures.
type zipMemberReader struct {
	r    io.Reader
	name string
}

func (z *zipMemberReader) Read(p []byte) (int, error) {
	n, err := z.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %s: %v", ErrFormat, z.name, err)
	}
	return n, err
}
