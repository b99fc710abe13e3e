package zb

import (
	"slices"
)

// archiveQueue orders archives oldest first. Archives with equal timestamps
// keep the order in which the catalog returned them.
type archiveQueue struct {
	items []*Archive
}

func newArchiveQueue(archives []*Archive) *archiveQueue {
	items := slices.Clone(archives)
	slices.SortStableFunc(items, func(a, b *Archive) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return &archiveQueue{items: items}
}

func (q *archiveQueue) Len() int {
	return len(q.items)
}

// PopOldest removes and returns the oldest archive, or nil when empty.
func (q *archiveQueue) PopOldest() *Archive {
	if len(q.items) == 0 {
		return nil
	}
	a := q.items[0]
	q.items = q.items[1:]
	return a
}

// Newest returns the most recent archive without removing it.
func (q *archiveQueue) Newest() *Archive {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[len(q.items)-1]
}
