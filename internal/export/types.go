// Package export renders entity and lore dossiers as HTML or PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat accepts "pdf" and "html", defaulting to pdf when empty.
func ParseFormat(raw string) (Format, bool) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML:
		return FormatHTML, true
	default:
		return "", false
	}
}

// Dossier is the printable view of one record.
type Dossier struct {
	Kind       string
	Title      string
	Subtitle   string
	Status     string
	StatusNote string
	Author     string
	Version    int
	UpdatedAt  time.Time
	Tags       []string
	Attributes []Attribute
	Blocks     []Block
	Links      []Link
	Comments   []Comment
}

type Attribute struct {
	Key   string
	Value string
}

// Block is a heading or paragraph of body text.
type Block struct {
	Heading bool
	Lines   []string
}

type Link struct {
	Relation string
	Name     string
	Outgoing bool
}

type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("unsupported export format")
)
