// Package models defines the domain types shared by the board, the engine and the outer surfaces.
package models

import "time"

// Item types known to the board. Only numeric notes take part in calculations.
const (
	TypeNumericNote = "numeric-note"
	TypeStickyNote  = "sticky-note"
)

// Item is a single object on the board.
type Item struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"created_at"`
}

// Position returns the item's coordinates.
func (i Item) Position() Position {
	return Position{X: i.X, Y: i.Y}
}

// Position is a point on the board.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Style holds presentation hints; the board stores them verbatim.
type Style struct {
	FillColor string `json:"fill_color,omitempty" yaml:"fill_color,omitempty"`
	TextColor string `json:"text_color,omitempty" yaml:"text_color,omitempty"`
}

// ItemMetadata is a lightweight representation returned by list operations.
type ItemMetadata struct {
	ID        string    `json:"id"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
