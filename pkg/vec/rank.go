package vec

import (
	"sort"
	"time"
)

type Candidate struct {
	ID        string
	ThreadID  string
	Vector    []float32
	Seq       int64
	CreatedAt time.Time
}

type Scored struct {
	Candidate
	Score float32
}

// TopK scores candidates against query and returns at most k of them by
// descending score. Equal scores keep the more recent candidate first.
func TopK(query []float32, candidates []Candidate, k int) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{Candidate: c, Score: Cosine(query, c.Vector)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID < b.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
