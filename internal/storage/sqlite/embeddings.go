package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// GetCachedEmbedding returns nil, nil on a miss
func (s *Store) GetCachedEmbedding(ctx context.Context, key string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT vector FROM embedding_cache WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached embedding: %w", err)
	}
	return decodeVector(blob)
}

// PutCachedEmbedding stores a vector, replacing any previous entry
func (s *Store) PutCachedEmbedding(ctx context.Context, key, model string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (key, model, dimensions, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, model, len(vector), encodeVector(vector), toNanos(s.now()))
	if err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// encodeVector packs little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding blob: %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
