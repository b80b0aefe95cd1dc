package storage

import (
	"context"
	"io"
)

// Transfer streams src/srcKey into dst/dstKey. Bytes are encoded with
// encode on the way in (CodecNone copies verbatim). It returns the number of
// source bytes read. The source object is left in place.
func Transfer(ctx context.Context, src Backend, srcKey string, dst Backend, dstKey string, encode Codec) (int64, error) {
	reader, err := src.Open(ctx, srcKey)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	pr, pw := io.Pipe()
	counted := &countingReader{r: reader}

	go func() {
		enc, err := encode.Compress(pw)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(enc, contextReader{ctx: ctx, r: counted}); err != nil {
			_ = enc.Close()
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(enc.Close())
	}()

	if err := dst.Put(ctx, dstKey, pr, -1); err != nil {
		_ = pr.CloseWithError(err)
		return 0, err
	}
	return counted.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
