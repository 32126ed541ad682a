package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// PrepareWrite validates a batch and returns copies ready to persist:
// missing IDs are generated and zero CreatedAt values become now. ids has
// one entry per input, in input order.
func PrepareWrite(memories []*Memory, now time.Time) (staged []*Memory, ids []MemoryID, err error) {
	staged = make([]*Memory, len(memories))
	ids = make([]MemoryID, len(memories))
	for i, mem := range memories {
		if err := mem.Validate(); err != nil {
			return nil, nil, goerr.Wrap(err, "invalid memory in batch", goerr.V("index", i))
		}
		s := mem.Copy()
		if s.ID == "" {
			s.ID = NewMemoryID()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		staged[i] = s
		ids[i] = s.ID
	}
	return staged, ids, nil
}

// LatestByID drops earlier occurrences of a repeated ID, keeping the
// position of the first occurrence and the content of the last.
func LatestByID(memories []*Memory) []*Memory {
	pos := make(map[MemoryID]int, len(memories))
	result := make([]*Memory, 0, len(memories))
	for _, m := range memories {
		if i, ok := pos[m.ID]; ok {
			result[i] = m
			continue
		}
		pos[m.ID] = len(result)
		result = append(result, m)
	}
	return result
}
