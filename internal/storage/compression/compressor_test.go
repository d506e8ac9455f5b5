package compression

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackCompressesRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte("connect initiate test accept "), 64)
	c, err := Get("lz4")
	require.NoError(t, err)

	frame, err := Pack(c, data)
	require.NoError(t, err)
	assert.Equal(t, tagLZ4, frame[0])
	assert.Less(t, len(frame), len(data))

	got, err := Unpack(frame)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPackStoresIncompressibleDataRaw(t *testing.T) {
	data := []byte{0x01, 0x7f, 0x33}
	frame, err := Pack(LZ4Compressor{}, data)
	require.NoError(t, err)
	assert.Equal(t, tagNone, frame[0])

	got, err := Unpack(frame)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	frame, err = Pack(NoCompressor{}, bytes.Repeat([]byte{0}, 512))
	require.NoError(t, err)
	assert.Equal(t, tagNone, frame[0])
}

func TestUnpackRejectsCorruptFrames(t *testing.T) {
	_, err := Unpack(nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Unpack([]byte{9, 1, 0})
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Unpack([]byte{tagNone, 5, 'a'})
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Get("zstd")
	assert.Error(t, err)
}

func TestUnpackRejectsOversizedLength(t *testing.T) {
	for _, size := range []uint64{MaxRecordSize + 1, 1 << 63, ^uint64(0)} {
		frame := binary.AppendUvarint([]byte{tagLZ4}, size)
		frame = append(frame, 0x10, 'a')
		_, err := Unpack(frame)
		assert.ErrorIs(t, err, ErrCorrupt, "size %d", size)
	}

	_, err := LZ4Compressor{}.Decompress([]byte{0x10, 'a'}, -1)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Pack(NoCompressor{}, make([]byte, MaxRecordSize+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}
