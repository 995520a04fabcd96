package prune

import (
	"fmt"
	"sort"
	"strings"
)

// IndexSet is a sorted set of channel positions.
type IndexSet []int

// NewIndexSet builds a set from arbitrary indices, dropping duplicates.
func NewIndexSet(idxs ...int) IndexSet {
	if len(idxs) == 0 {
		return IndexSet{}
	}
	s := make(IndexSet, len(idxs))
	copy(s, idxs)
	sort.Ints(s)
	j := 1
	for i := 1; i < len(s); i++ {
		if s[i] != s[j-1] {
			s[j] = s[i]
			j++
		}
	}
	return s[:j]
}

// Range returns the set [start, end).
func Range(start, end int) IndexSet {
	if end <= start {
		return IndexSet{}
	}
	s := make(IndexSet, end-start)
	for i := range s {
		s[i] = start + i
	}
	return s
}

// Len returns the number of indices.
func (s IndexSet) Len() int {
	return len(s)
}

// Max returns the largest index, or -1 for an empty set.
func (s IndexSet) Max() int {
	if len(s) == 0 {
		return -1
	}
	return s[len(s)-1]
}

// Contains reports whether i is in the set.
func (s IndexSet) Contains(i int) bool {
	k := sort.SearchInts(s, i)
	return k < len(s) && s[k] == i
}

// Ints returns a copy of the indices.
func (s IndexSet) Ints() []int {
	return append([]int(nil), s...)
}

// Equal reports whether both sets hold the same indices.
func (s IndexSet) Equal(o IndexSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Union merges two sets.
func (s IndexSet) Union(o IndexSet) IndexSet {
	out := make(IndexSet, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			out = append(out, s[i])
			i++
		case s[i] > o[j]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	return append(out, o[j:]...)
}

// Window keeps the indices in [offset, offset+width) and rebases them to 0.
func (s IndexSet) Window(offset, width int) IndexSet {
	lo := sort.SearchInts(s, offset)
	hi := sort.SearchInts(s, offset+width)
	out := make(IndexSet, 0, hi-lo)
	for _, i := range s[lo:hi] {
		out = append(out, i-offset)
	}
	return out
}

// CountIn returns how many indices fall in [offset, offset+width).
func (s IndexSet) CountIn(offset, width int) int {
	return sort.SearchInts(s, offset+width) - sort.SearchInts(s, offset)
}

// Shift adds offset to every index.
func (s IndexSet) Shift(offset int) IndexSet {
	out := make(IndexSet, len(s))
	for i, v := range s {
		out[i] = v + offset
	}
	return out
}

func (s IndexSet) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = fmt.Sprint(v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
