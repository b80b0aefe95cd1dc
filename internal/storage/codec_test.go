package storage_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/storage"
)

func TestTransferRoundTripsAcrossCodecs(t *testing.T) {
	payload := bytes.Repeat([]byte("frame-data-"), 4096)
	for _, codec := range []storage.Codec{storage.CodecNone, storage.CodecZstd, storage.CodecLZ4} {
		t.Run(string(codec), func(t *testing.T) {
			ctx := context.Background()
			exports := storage.NewMemory("exports")
			archive := storage.NewMemory("archive")
			require.NoError(t, exports.Put(ctx, "exports/p/v1.mp4", bytes.NewReader(payload), int64(len(payload))))

			archiveKey := "p/v1.mp4" + codec.Extension()
			n, err := storage.Transfer(ctx, exports, "exports/p/v1.mp4", archive, archiveKey, codec)
			require.NoError(t, err)
			assert.Equal(t, int64(len(payload)), n)
			assert.True(t, exports.Has("exports/p/v1.mp4"), "transfer must not remove the source")

			stored, err := archive.Stat(ctx, archiveKey)
			require.NoError(t, err)
			if codec == storage.CodecNone {
				assert.Equal(t, int64(len(payload)), stored)
			} else {
				assert.Less(t, stored, int64(len(payload)), "repetitive payload should compress")
			}

			reader, err := archive.Open(ctx, archiveKey)
			require.NoError(t, err)
			defer reader.Close()
			dec, err := codec.Decompress(reader)
			require.NoError(t, err)
			defer dec.Close()
			got, err := io.ReadAll(dec)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestTransferMissingSource(t *testing.T) {
	_, err := storage.Transfer(context.Background(), storage.NewMemory("a"), "nope", storage.NewMemory("b"), "x", storage.CodecZstd)
	assert.Error(t, err)
}

func TestParseCodec(t *testing.T) {
	for input, want := range map[string]storage.Codec{"": storage.CodecNone, "ZSTD": storage.CodecZstd, " lz4 ": storage.CodecLZ4} {
		got, err := storage.ParseCodec(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := storage.ParseCodec("gzip")
	assert.Error(t, err)
}
