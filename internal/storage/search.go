package storage

import (
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/vec"
)

func Hits(scored []vec.Scored) []core.SearchHit {
	hits := make([]core.SearchHit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, core.SearchHit{
			MessageID: s.ID,
			ThreadID:  s.ThreadID,
			Score:     s.Score,
			Seq:       s.Seq,
			CreatedAt: s.CreatedAt,
		})
	}
	return hits
}
