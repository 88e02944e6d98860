// Package export renders a user's data as a downloadable JSON or PDF document.
package export

import (
	"errors"
	"time"

	"thoughtful/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format. Empty means JSON.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Profile is the exported part of a user record. It never carries the
// password hash or API keys.
type Profile struct {
	ID                string                   `json:"id"`
	Username          string                   `json:"username"`
	CreatedAt         time.Time                `json:"createdAt"`
	StatusDefinitions []store.StatusDefinition `json:"statusDefinitions"`
}

// Snapshot is the full export document.
type Snapshot struct {
	User       Profile      `json:"user"`
	Ideas      []store.Idea `json:"ideas"`
	ExportedAt time.Time    `json:"exportedAt"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates an unknown format query value.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrArchiveDisabled indicates no object storage is configured for export links.
	ErrArchiveDisabled = errors.New("export archive not configured")
)
