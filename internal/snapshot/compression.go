package snapshot

import (
	"github.com/klauspost/compress/zstd"
)

const defaultCompressMin = 4 * 1024 // bodies below this are stored raw

// codec compresses large blobs with zstd before they hit disk.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
	min int
}

func newCodec(min int) (*codec, error) {
	if min == 0 {
		min = defaultCompressMin
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, err
	}

	return &codec{enc: enc, dec: dec, min: min}, nil
}

// compress returns the storable body and whether compression was applied.
// Blobs that do not shrink are kept raw.
func (c *codec) compress(content []byte) ([]byte, bool) {
	if len(content) < c.min {
		return content, false
	}
	body := c.enc.EncodeAll(content, make([]byte, 0, len(content)))
	if len(body) >= len(content) {
		return content, false
	}
	return body, true
}

func (c *codec) decompress(body []byte) ([]byte, error) {
	return c.dec.DecodeAll(body, nil)
}
