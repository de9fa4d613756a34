package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// HashVector derives a deterministic unit vector of length dims from text.
// SHA-256 is run in counter mode over the input so every coordinate is
// filled; each 32-bit word maps to [-1, 1].
func HashVector(text string, dims int) []float32 {
	if dims <= 0 {
		return nil
	}

	values := make([]float32, dims)
	var counter [4]byte
	var norm float64
	for block := 0; block*8 < dims; block++ {
		binary.BigEndian.PutUint32(counter[:], uint32(block))
		h := sha256.New()
		h.Write(counter[:])
		h.Write([]byte(text))
		sum := h.Sum(nil)

		for w := 0; w < 8; w++ {
			i := block*8 + w
			if i >= dims {
				break
			}
			word := binary.BigEndian.Uint32(sum[w*4 : w*4+4])
			v := float64(word)/float64(math.MaxUint32)*2 - 1
			values[i] = float32(v)
			norm += v * v
		}
	}

	if norm == 0 {
		return values
	}
	scale := 1 / math.Sqrt(norm)
	for i := range values {
		values[i] = float32(float64(values[i]) * scale)
	}
	return values
}

// ContentHash computes the cache key for text under a model.
func ContentHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return fmt.Sprintf("%x", h)
}
