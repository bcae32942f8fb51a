// Package compress provides the optional column-value compression named by
// the `compression: {enabled, columns[]}` config key.
//
// Values of columns listed there are zstd-compressed before being bound as
// a BLOB parameter, and decompressed transparently on read. Built on
// github.com/klauspost/compress/zstd (present in the example corpus's
// erigontech/erigon go.mod), which is the standard high-throughput
// compression library in the Go ecosystem — there is no idiomatic reason
// to hand-roll this on top of compress/flate.
package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses column values. A single Codec is safe
// for concurrent use; it is shared by the Store's insert and query paths.
type Codec struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec builds a Codec ready for use.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("building zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("building zstd decoder: %w", err)
	}
	return &Codec{encoder: enc, decoder: dec}, nil
}

// Compress returns the zstd-compressed form of data.
func (c *Codec) Compress(data []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
}

// Decompress reverses Compress.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing value: %w", err)
	}
	return out, nil
}

// Close releases the encoder/decoder goroutines.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder.Close()
	c.decoder.Close()
}

// ColumnSet reports whether compression applies to a given column name.
type ColumnSet struct {
	enabled bool
	names   map[string]bool
}

// NewColumnSet builds a ColumnSet from the configured column list.
func NewColumnSet(enabled bool, columns []string) ColumnSet {
	names := make(map[string]bool, len(columns))
	for _, c := range columns {
		names[c] = true
	}
	return ColumnSet{enabled: enabled, names: names}
}

// Applies reports whether column should be compressed.
func (s ColumnSet) Applies(column string) bool {
	return s.enabled && s.names[column]
}
