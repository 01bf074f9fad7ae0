package engine

import (
	"slices"
	"sort"
	"time"

	"github.com/starford/tally/internal/calc"
)

// DerivedNote describes one calculator note: the board item holding the
// result and the sources it is computed from. SourceIDs is fixed at creation.
type DerivedNote struct {
	ID        string         `json:"id"`
	Operation calc.Operation `json:"operation"`
	SourceIDs []string       `json:"source_ids"`
	CreatedAt time.Time      `json:"created_at"`
}

func (d DerivedNote) clone() DerivedNote {
	d.SourceIDs = slices.Clone(d.SourceIDs)
	return d
}

// DependsOn reports whether sourceID is one of the note's sources.
func (d DerivedNote) DependsOn(sourceID string) bool {
	return slices.Contains(d.SourceIDs, sourceID)
}

// Index maps derived-note ids to their descriptors. It is not safe for
// concurrent use; the engine confines it to its own goroutine.
type Index struct {
	notes map[string]DerivedNote
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{notes: make(map[string]DerivedNote)}
}

// Register adds or replaces the entry for note.ID.
func (x *Index) Register(note DerivedNote) {
	x.notes[note.ID] = note.clone()
}

// Unregister removes id and reports whether it was present.
func (x *Index) Unregister(id string) bool {
	if _, ok := x.notes[id]; !ok {
		return false
	}
	delete(x.notes, id)
	return true
}

// Get returns a copy of the entry for id.
func (x *Index) Get(id string) (DerivedNote, bool) {
	n, ok := x.notes[id]
	if !ok {
		return DerivedNote{}, false
	}
	return n.clone(), true
}

// EntriesDependingOn returns every note whose sources include sourceID.
func (x *Index) EntriesDependingOn(sourceID string) []DerivedNote {
	var out []DerivedNote
	for _, n := range x.notes {
		if n.DependsOn(sourceID) {
			out = append(out, n.clone())
		}
	}
	return out
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.notes)
}

// Entries returns copies of all entries ordered by creation time, then id.
func (x *Index) Entries() []DerivedNote {
	out := make([]DerivedNote, 0, len(x.notes))
	for _, n := range x.notes {
		out = append(out, n.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
