// Package similarity ranks stored vectors against a query vector.
//
// Everything here is pure: callers build the candidate pool from whatever
// entities they care about and receive an ordered list of matches back.
// Vectors of different lengths are never padded or truncated.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a query and a candidate vector
// have different lengths. It indicates a configuration error and must not
// be retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DimensionMismatchError names the candidate that failed.
type DimensionMismatchError struct {
	ID   string
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%v: want %d dimensions, got %d", ErrDimensionMismatch, e.Want, e.Got)
	}
	return fmt.Sprintf("%v: candidate %s has %d dimensions, query has %d", ErrDimensionMismatch, e.ID, e.Got, e.Want)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// Candidate is one vector in the search pool.
type Candidate struct {
	ID     string
	Vector []float32
}

// Match is a candidate that scored at or above the threshold.
type Match struct {
	ID    string
	Score float64
}

// Cosine returns the cosine similarity of a and b clamped to [0, 1].
// A zero-norm vector on either side scores 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Want: len(a), Got: len(b)}
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return clamp(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// TopK scores every candidate against query and returns up to k matches
// with score >= minScore, highest first. Ties keep pool order. k <= 0
// returns every qualifying match. A candidate whose length differs from
// the query fails the whole call.
func TopK(query []float32, pool []Candidate, k int, minScore float64) ([]Match, error) {
	matches := make([]Match, 0, len(pool))
	for _, c := range pool {
		if len(c.Vector) != len(query) {
			return nil, &DimensionMismatchError{ID: c.ID, Want: len(query), Got: len(c.Vector)}
		}
		score, err := Cosine(query, c.Vector)
		if err != nil {
			return nil, err
		}
		if score >= minScore {
			matches = append(matches, Match{ID: c.ID, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
