package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	encodingZstd = "zstd"

	// Bodies smaller than this are stored uncompressed.
	compressMinBytes = 512
)

// storedEntry is the serialized form of an Entry inside Redis.
type storedEntry struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Encoding   string      `json:"encoding,omitempty"`
	Data       []byte      `json:"data"`
	CachedAt   time.Time   `json:"cached_at"`
}

// codec serializes entries and compresses their bodies with zstd.
// EncodeAll and DecodeAll are safe for concurrent use.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) marshal(entry *Entry) ([]byte, error) {
	stored := storedEntry{
		StatusCode: entry.StatusCode,
		Headers:    entry.Headers,
		Data:       entry.Data,
		CachedAt:   entry.CachedAt,
	}
	if len(entry.Data) >= compressMinBytes {
		stored.Encoding = encodingZstd
		stored.Data = c.enc.EncodeAll(entry.Data, make([]byte, 0, len(entry.Data)/2))
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func (c *codec) unmarshal(data []byte) (*Entry, error) {
	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	body := stored.Data
	switch stored.Encoding {
	case "":
	case encodingZstd:
		decoded, err := c.dec.DecodeAll(stored.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress body: %v", ErrInvalidEntry, err)
		}
		body = decoded
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidEntry, stored.Encoding)
	}

	return &Entry{
		StatusCode: stored.StatusCode,
		Headers:    stored.Headers,
		Data:       body,
		CachedAt:   stored.CachedAt,
	}, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
