// Package mnist loads the MNIST handwritten digit dataset from IDX files
// and serves it in shuffled mini-batches.
package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	imageMagic = 2051
	labelMagic = 2049
)

// openIDX opens an IDX file, transparently decompressing .gz files.
func openIDX(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(filename, ".gz") {
		return file, nil
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &gzipReadCloser{gz: gz, file: file}, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	g.gz.Close()
	return g.file.Close()
}

// readIDXImages reads an IDX image file:
//
//	magic (2051), count, rows, cols: 4 bytes each, big-endian
//	pixel data: unsigned bytes
func readIDXImages(filename string) ([][]byte, int, int, error) {
	r, err := openIDX(filename)
	if err != nil {
		return nil, 0, 0, err
	}
	defer r.Close()

	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, 0, 0, fmt.Errorf("%s: reading header: %w", filename, err)
		}
	}
	if header[0] != imageMagic {
		return nil, 0, 0, fmt.Errorf("%s: invalid magic number: got %d, want %d", filename, header[0], imageMagic)
	}

	count, rows, cols := int(header[1]), int(header[2]), int(header[3])
	imageSize := rows * cols
	images := make([][]byte, count)
	for i := range images {
		images[i] = make([]byte, imageSize)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, 0, 0, fmt.Errorf("%s: reading image %d: %w", filename, i, err)
		}
	}
	return images, rows, cols, nil
}

// readIDXLabels reads an IDX label file:
//
//	magic (2049), count: 4 bytes each, big-endian
//	label data: unsigned bytes
func readIDXLabels(filename string) ([]byte, error) {
	r, err := openIDX(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var magic, count uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", filename, err)
	}
	if magic != labelMagic {
		return nil, fmt.Errorf("%s: invalid magic number: got %d, want %d", filename, magic, labelMagic)
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", filename, err)
	}

	labels := make([]byte, count)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("%s: reading labels: %w", filename, err)
	}
	return labels, nil
}
