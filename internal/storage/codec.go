// internal/storage/codec.go
package storage

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Values carry a one-byte encoding header ahead of the payload.
const (
	encodingRaw  byte = 0x00
	encodingZstd byte = 0x01
)

type codec struct {
	compressAbove int
	enc           *zstd.Encoder
	dec           *zstd.Decoder
}

func newCodec(compressAbove int) (*codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &codec{
		compressAbove: compressAbove,
		enc:           enc,
		dec:           dec,
	}, nil
}

func (c *codec) marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}
	return c.encode(data), nil
}

func (c *codec) encode(data []byte) []byte {
	if c.compressAbove > 0 && len(data) > c.compressAbove {
		out := make([]byte, 1, len(data)/2+1)
		out[0] = encodingZstd
		return c.enc.EncodeAll(data, out)
	}

	out := make([]byte, 0, len(data)+1)
	out = append(out, encodingRaw)
	return append(out, data...)
}

// decode strips the header and returns the JSON payload.
func (c *codec) decode(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	switch value[0] {
	case encodingRaw:
		return value[1:], nil
	case encodingZstd:
		data, err := c.dec.DecodeAll(value[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing value: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown value encoding 0x%02x", value[0])
	}
}

func (c *codec) unmarshal(value []byte, v any) error {
	data, err := c.decode(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling value: %w", err)
	}
	return nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
