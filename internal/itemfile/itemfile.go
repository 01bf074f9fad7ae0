// Package itemfile encodes board items as Markdown files: YAML frontmatter
// carries the item attributes and the body carries the content.
package itemfile

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/tally/internal/models"
)

const delim = "---"

type frontmatter struct {
	Type      string       `yaml:"type"`
	X         float64      `yaml:"x"`
	Y         float64      `yaml:"y"`
	Style     models.Style `yaml:"style,omitempty"`
	CreatedAt time.Time    `yaml:"created_at,omitempty"`
}

// Decode parses raw file bytes into an item with the given id. Files without
// frontmatter (or with invalid YAML) are read as a numeric note whose content
// is the whole file.
func Decode(id string, data []byte) models.Item {
	fm, body, ok := splitFrontmatter(data)
	item := models.Item{
		ID:      id,
		Type:    models.TypeNumericNote,
		Content: strings.TrimRight(body, "\r\n"),
	}
	if !ok {
		return item
	}
	if fm.Type != "" {
		item.Type = fm.Type
	}
	item.X, item.Y = fm.X, fm.Y
	item.Style = fm.Style
	item.CreatedAt = fm.CreatedAt
	return item
}

// Encode renders an item as file bytes. The id is not written; it is the
// file name.
func Encode(item models.Item) ([]byte, error) {
	fm := frontmatter{
		Type:      item.Type,
		X:         item.X,
		Y:         item.Y,
		Style:     item.Style,
		CreatedAt: item.CreatedAt.UTC(),
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("itemfile: encode %s: %w", item.ID, err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(head)
	buf.WriteString(delim + "\n")
	buf.WriteString(item.Content)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// splitFrontmatter separates the YAML block between leading --- delimiters
// from the body.
func splitFrontmatter(data []byte) (frontmatter, string, bool) {
	var fm frontmatter
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), false
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return frontmatter{}, string(data), false
	}
	return fm, body, true
}
