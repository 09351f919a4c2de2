// internal/vault/compression.go
package vault

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic. Whether an object was compressed is recorded in its
// metadata; the magic check only guards against a mismatch between the
// metadata and the object file on disk.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

type compressor struct {
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func newCompressor(level, minSize int) (*compressor, error) {
	if level == 0 {
		level = 2 // Balanced speed/compression
	}
	if minSize == 0 {
		minSize = 1024 // 1KB
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &compressor{minSize: minSize, enc: enc, dec: dec}, nil
}

// compress returns the encoded form and whether encoding was applied.
// Small content and content that does not shrink is stored raw.
func (c *compressor) compress(content []byte) ([]byte, bool) {
	if len(content) < c.minSize {
		return content, false
	}

	encoded := c.enc.EncodeAll(content, nil)
	if len(encoded) >= len(content) {
		return content, false
	}
	return encoded, true
}

func (c *compressor) decompress(stored []byte) ([]byte, error) {
	if len(stored) < len(zstdMagic) || !bytes.Equal(stored[:4], zstdMagic) {
		return nil, fmt.Errorf("compressed object missing zstd frame header")
	}
	return c.dec.DecodeAll(stored, nil)
}
