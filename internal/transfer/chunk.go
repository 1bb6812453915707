// Package transfer moves payloads larger than one remote reply across units
// as an ordered sequence of fixed-size chunks.
package transfer

import (
	"context"
	"fmt"
)

const DefaultMaxBytesPerChunk = 2_000_000

// Chunk is one slice of a serialized payload. Index and Last form the
// (chunk, last_chunk) pair of the reply; (0,0) means the payload fits in one reply.
type Chunk struct {
	Bytes []byte `json:"bytes"`
	Index int    `json:"chunk"`
	Last  int    `json:"last_chunk"`
}

// Slice returns chunk index of payload. Payloads shorter than maxBytes come
// back whole as (0,0). Out of range indexes yield an empty slice with the
// same bounds so the requester still learns the last index.
func Slice(payload []byte, index, maxBytes int) (Chunk, error) {
	if maxBytes <= 0 {
		return Chunk{}, fmt.Errorf("max bytes per chunk must be positive, got %d", maxBytes)
	}
	if index < 0 {
		return Chunk{}, fmt.Errorf("chunk index must not be negative, got %d", index)
	}
	if len(payload) < maxBytes {
		return Chunk{Bytes: payload, Index: 0, Last: 0}, nil
	}

	last := len(payload) / maxBytes
	if len(payload)%maxBytes == 0 {
		last--
	}
	if index > last {
		return Chunk{Bytes: []byte{}, Index: index, Last: last}, nil
	}
	start := index * maxBytes
	end := min(start+maxBytes, len(payload))
	return Chunk{Bytes: payload[start:end], Index: index, Last: last}, nil
}

// FetchFunc requests a single chunk from the producer.
type FetchFunc func(ctx context.Context, index int) (Chunk, error)

// Fetch pulls chunk 0, then chunks 1..last one after another, and returns the
// concatenated bytes in index order.
func Fetch(ctx context.Context, fetch FetchFunc) ([]byte, error) {
	first, err := fetch(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk 0: %w", err)
	}
	out := append([]byte(nil), first.Bytes...)

	for i := 1; i <= first.Last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := fetch(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("fetch chunk %d/%d: %w", i, first.Last, err)
		}
		if c.Index != i {
			return nil, fmt.Errorf("fetch chunk %d: producer answered chunk %d", i, c.Index)
		}
		out = append(out, c.Bytes...)
	}
	return out, nil
}
