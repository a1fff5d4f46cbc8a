package compression

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedStream is returned when input is not a valid zlib stream
// or inflates beyond the output limit
var ErrMalformedStream = errors.New("malformed zlib stream")

const (
	// BestCompression is the zlib level used for outgoing order data
	BestCompression = zlib.BestCompression

	// DefaultMaxDecompressedSize bounds the output of Decompress
	DefaultMaxDecompressedSize int64 = 256 << 20
)

// Compressor deflates order data into zlib streams (RFC 1950)
type Compressor struct {
	compressionLevel int
	maxSize          int64
}

// NewCompressor creates a new compressor with default compression level
func NewCompressor() *Compressor {
	return &Compressor{
		compressionLevel: zlib.DefaultCompression,
		maxSize:          DefaultMaxDecompressedSize,
	}
}

// NewCompressorWithLevel creates a new compressor with specified compression level.
// Levels outside the zlib range fall back to the default.
func NewCompressorWithLevel(level int) *Compressor {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}
	return &Compressor{
		compressionLevel: level,
		maxSize:          DefaultMaxDecompressedSize,
	}
}

// WithMaxSize returns a copy of c that refuses to inflate more than n bytes.
// Values below one keep the current limit.
func (c *Compressor) WithMaxSize(n int64) *Compressor {
	out := *c
	if n > 0 {
		out.maxSize = n
	}
	return &out
}

// Compress deflates data into a zlib stream
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := zlib.NewWriterLevel(&buf, c.compressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream. Truncated or corrupted input and output
// larger than the size limit wrap ErrMalformedStream.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStream, err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStream, err)
	}
	if n > c.maxSize {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrMalformedStream, c.maxSize)
	}

	return buf.Bytes(), nil
}
