package plugins

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/nlepage/go-tarfs"
)

var gzipMagic = []byte{0x1f, 0x8b}

// OpenPackage mounts a plugin package (a tar archive, optionally gzip-compressed) as a filesystem
func OpenPackage(path string) (fs.FS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open package: %v", ErrMalformedUnit, err)
	}
	defer f.Close()

	return ReadPackage(f)
}

// ReadPackage mounts a plugin package read from r
func ReadPackage(r io.Reader) (fs.FS, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br
	if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid gzip stream: %v", ErrMalformedUnit, err)
		}
		defer gz.Close()
		src = gz
	}

	fsys, err := tarfs.New(src)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid package archive: %v", ErrMalformedUnit, err)
	}
	return fsys, nil
}
