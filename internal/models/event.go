package models

// EventKind names a class of board event.
type EventKind string

const (
	EventSelectionChanged EventKind = "selection.changed"
	EventItemsChanged     EventKind = "items.changed"
	EventItemsDeleted     EventKind = "items.deleted"
)

// Event is delivered to board subscribers. Items is set for selection and
// change events, IDs for deletions.
type Event struct {
	Kind  EventKind
	Items []Item
	IDs   []string
}
