// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package bitmap

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// sniffLen is the number of header bytes inspected for format detection.
const sniffLen = 262

// Decoding errors.
var (
	// ErrUnsupportedFormat is returned when the data is not a decodable image.
	ErrUnsupportedFormat = errors.New("bitmap: unsupported image format")
)

// supported lists the MIME subtypes with a registered decoder.
var supported = map[string]bool{
	"png":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
	"bmp":  true,
	"tiff": true,
}

// Sniff reports the image format of header, or ErrUnsupportedFormat.
func Sniff(header []byte) (string, error) {
	kind, err := filetype.Image(header)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedFormat
	}
	if !supported[kind.MIME.Subtype] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind.MIME.Value)
	}
	return kind.MIME.Subtype, nil
}

// Decode reads an image from r and returns a handle owning one reference.
func Decode(r io.Reader, opts ...Option) (*Handle, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	header, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("bitmap: read header: %w", err)
	}
	if _, err := Sniff(header); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(br)
	if err != nil {
		return nil, fmt.Errorf("bitmap: decode: %w", err)
	}
	return New(img, opts...), nil
}

// Load decodes the image file at path.
func Load(path string, opts ...Option) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap: %w", err)
	}
	defer f.Close()

	h, err := Decode(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// SniffFile reports the image format of the file at path from its header.
func SniffFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("bitmap: %w", err)
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("bitmap: read header: %w", err)
	}
	return Sniff(header[:n])
}
