package buffer

import (
	"sort"
	"sync"
)

// Entry is one value stamped with its change sequence.
type Entry[T any] struct {
	Seq   uint64
	Value T
}

// RevisionBuffer keeps the most recent entries of a strictly increasing,
// gap-free sequence in a fixed ring. Older entries are overwritten.
type RevisionBuffer[T any] struct {
	mu      sync.RWMutex
	entries []Entry[T]
	size    int
	head    int
	isFull  bool
}

func NewRevisionBuffer[T any](size int) *RevisionBuffer[T] {
	if size <= 0 {
		size = 256
	}
	return &RevisionBuffer[T]{
		entries: make([]Entry[T], size),
		size:    size,
	}
}

func (b *RevisionBuffer[T]) Add(seq uint64, v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = Entry[T]{Seq: seq, Value: v}
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.isFull = true
	}
}

func (b *RevisionBuffer[T]) bounds() (start, count int) {
	count = b.head
	if b.isFull {
		count = b.size
		start = b.head
	}
	return start, count
}

// GetSince returns the retained entries with Seq > lastSeq in order.
// complete is false when entries between lastSeq and the oldest retained
// one were already overwritten; the returned slice then starts at the oldest.
func (b *RevisionBuffer[T]) GetSince(lastSeq uint64) (result []Entry[T], complete bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start, count := b.bounds()
	if count == 0 {
		return nil, true
	}

	oldest := b.entries[start].Seq
	complete = lastSeq+1 >= oldest

	// Logical index range: [0, count) maps to physical index: (start + i) % size
	idx := sort.Search(count, func(i int) bool {
		return b.entries[(start+i)%b.size].Seq > lastSeq
	})
	if idx == count {
		return nil, complete
	}

	result = make([]Entry[T], 0, count-idx)
	for i := idx; i < count; i++ {
		result = append(result, b.entries[(start+i)%b.size])
	}
	return result, complete
}

// Latest returns the newest entry, if any.
func (b *RevisionBuffer[T]) Latest() (Entry[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, count := b.bounds()
	if count == 0 {
		return Entry[T]{}, false
	}
	return b.entries[(b.head-1+b.size)%b.size], true
}

func (b *RevisionBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, count := b.bounds()
	return count
}
