package voice

import "sort"

// Index maps active notes to the voice answering to them. It belongs to the
// control side; callers serialize access. A note leaves the index as soon
// as it is released even though its voice keeps sounding through the tail.
type Index struct {
	ids map[int]uint64
}

func NewIndex() *Index {
	return &Index{ids: make(map[int]uint64)}
}

// Attach binds note to id and returns the voice previously bound, if any.
func (x *Index) Attach(note int, id uint64) (prev uint64, ok bool) {
	prev, ok = x.ids[note]
	x.ids[note] = id
	return prev, ok
}

// Detach unbinds note and returns the voice it was bound to.
func (x *Index) Detach(note int) (uint64, bool) {
	id, ok := x.ids[note]
	if ok {
		delete(x.ids, note)
	}
	return id, ok
}

func (x *Index) Lookup(note int) (uint64, bool) {
	id, ok := x.ids[note]
	return id, ok
}

func (x *Index) Len() int { return len(x.ids) }

// Notes returns the bound notes in ascending order.
func (x *Index) Notes() []int {
	notes := make([]int, 0, len(x.ids))
	for n := range x.ids {
		notes = append(notes, n)
	}
	sort.Ints(notes)
	return notes
}

func (x *Index) Clear() {
	x.ids = make(map[int]uint64)
}
