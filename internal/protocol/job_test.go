package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Chunking(t *testing.T) {
	tests := []struct {
		name        string
		imageLen    int
		wantBlocks  int
		wantPadding int // zero bytes appended to the last block
	}{
		{
			name:       "single full block",
			imageLen:   16,
			wantBlocks: 1,
		},
		{
			name:        "one byte pads to a full block",
			imageLen:    1,
			wantBlocks:  1,
			wantPadding: 15,
		},
		{
			name:        "uneven tail is zero-padded",
			imageLen:    40,
			wantBlocks:  3,
			wantPadding: 8,
		},
		{
			name:       "928 bytes is 58 blocks",
			imageLen:   928,
			wantBlocks: 58,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := bytes.Repeat([]byte{0xFF}, tt.imageLen)

			job, err := NewJob(image, 1)
			require.NoError(t, err)
			require.Equal(t, tt.wantBlocks, len(job.Blocks))
			assert.Equal(t, uint16(tt.wantBlocks), job.BlockCount())

			for i, block := range job.Blocks {
				assert.Len(t, block, BlockPayloadLen, "block %d", i)
			}

			last := job.Blocks[len(job.Blocks)-1]
			for i := BlockPayloadLen - tt.wantPadding; i < BlockPayloadLen; i++ {
				assert.Zero(t, last[i], "padding byte %d", i)
			}
		})
	}
}

func TestNewJob_PreservesImageBytes(t *testing.T) {
	image := make([]byte, 48)
	for i := range image {
		image[i] = byte(i)
	}

	job, err := NewJob(image, 1)
	require.NoError(t, err)

	var reassembled []byte
	for _, block := range job.Blocks {
		reassembled = append(reassembled, block...)
	}
	assert.Equal(t, image, reassembled)
}

func TestNewJob_EmptyImage(t *testing.T) {
	_, err := NewJob(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = NewJob([]byte{}, 1)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestNewJob_TooLarge(t *testing.T) {
	// 65535 blocks is the limit; one byte over rolls into block 65536.
	limit := MaxBlockCount * BlockPayloadLen

	job, err := NewJob(make([]byte, limit), 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxBlockCount), job.BlockCount())

	_, err = NewJob(make([]byte, limit+1), 1)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestNewJob_DefaultCopies(t *testing.T) {
	job, err := NewJob([]byte{0x01}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), job.Copies)

	job, err = NewJob([]byte{0x01}, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), job.Copies)
}
