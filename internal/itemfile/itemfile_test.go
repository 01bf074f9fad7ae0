package itemfile

import (
	"testing"
	"time"

	"github.com/starford/tally/internal/models"
)

func TestEncodeDecode(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := models.Item{
		ID:        "abc",
		Type:      models.TypeNumericNote,
		Content:   "42.5",
		X:         10,
		Y:         -20.5,
		Style:     models.Style{FillColor: "#fff9b1"},
		CreatedAt: created,
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got := Decode("abc", data)
	if got.Content != "42.5" {
		t.Errorf("content = %q", got.Content)
	}
	if got.X != 10 || got.Y != -20.5 {
		t.Errorf("position = (%v, %v)", got.X, got.Y)
	}
	if got.Style.FillColor != "#fff9b1" {
		t.Errorf("fill = %q", got.Style.FillColor)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}
}

func TestDecode_NoFrontmatter(t *testing.T) {
	got := Decode("plain", []byte("  17  \n"))
	if got.Type != models.TypeNumericNote {
		t.Errorf("type = %q", got.Type)
	}
	if got.Content != "  17  " {
		t.Errorf("content = %q", got.Content)
	}
}

func TestDecode_UnclosedFrontmatter(t *testing.T) {
	raw := "---\ntype: sticky-note\nno closing"
	got := Decode("x", []byte(raw))
	if got.Content != raw {
		t.Errorf("content = %q, want whole file", got.Content)
	}
}

func TestDecode_InvalidYAML(t *testing.T) {
	raw := "---\nx: [1, 2\n---\n5\n"
	got := Decode("x", []byte(raw))
	if got.Type != models.TypeNumericNote {
		t.Errorf("type = %q", got.Type)
	}
}

func TestDecode_OtherType(t *testing.T) {
	got := Decode("s", []byte("---\ntype: sticky-note\nx: 1\ny: 2\n---\nhello\n"))
	if got.Type != models.TypeStickyNote {
		t.Errorf("type = %q", got.Type)
	}
	if got.Content != "hello" {
		t.Errorf("content = %q", got.Content)
	}
}
