// Package compression frames stored records, optionally LZ4 compressed.
package compression

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4"
)

// Compressor defines the interface for compression algorithms.
type Compressor interface {
	// Name returns the name of the compression algorithm.
	Name() string

	// Compress returns the compressed data, or ok false when compression does not pay.
	Compress(data []byte) (out []byte, ok bool, err error)

	// Decompress restores data of the given uncompressed size.
	Decompress(data []byte, size int) ([]byte, error)
}

// Frame tags.
const (
	tagNone byte = iota
	tagLZ4
)

// MaxRecordSize bounds the uncompressed size of one record.
const MaxRecordSize = 64 << 20

var (
	ErrCorrupt  = errors.New("corrupt record frame")
	ErrTooLarge = errors.New("record exceeds the maximum size")
)

// Get returns the compressor for name.
func Get(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return NoCompressor{}, nil
	case "lz4":
		return LZ4Compressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compressor: %s", name)
	}
}

// NoCompressor implements a pass-through compressor.
type NoCompressor struct{}

func (NoCompressor) Name() string { return "none" }

func (NoCompressor) Compress(data []byte) ([]byte, bool, error) { return nil, false, nil }

func (NoCompressor) Decompress(data []byte, _ int) ([]byte, error) { return data, nil }

// LZ4Compressor implements LZ4 block compression.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, nil
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compression failed: %w", err)
	}
	// zero means incompressible
	if n == 0 || n >= len(data) {
		return nil, false, nil
	}
	return compressed[:n], true, nil
}

func (LZ4Compressor) Decompress(data []byte, size int) ([]byte, error) {
	if size < 0 || size > MaxRecordSize {
		return nil, fmt.Errorf("lz4 size %d: %w", size, ErrCorrupt)
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 decompressed %d of %d bytes: %w", n, size, ErrCorrupt)
	}
	return out, nil
}

// Pack frames data as tag, uvarint raw length and payload.
func Pack(c Compressor, data []byte) ([]byte, error) {
	if len(data) > MaxRecordSize {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrTooLarge)
	}
	payload, ok, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	tag := tagLZ4
	if !ok {
		tag, payload = tagNone, data
	}
	frame := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	frame[0] = tag
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	return append(frame, payload...), nil
}

// Unpack reverses Pack whatever compressor wrote the frame.
func Unpack(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrCorrupt
	}
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 || size > MaxRecordSize {
		return nil, ErrCorrupt
	}
	payload := frame[1+n:]
	switch frame[0] {
	case tagNone:
		if uint64(len(payload)) != size {
			return nil, ErrCorrupt
		}
		return payload, nil
	case tagLZ4:
		return LZ4Compressor{}.Decompress(payload, int(size))
	default:
		return nil, fmt.Errorf("tag %d: %w", frame[0], ErrCorrupt)
	}
}
