// Package export packages project documentation as markdown files and
// archives.
package export

import "errors"

const (
	MarkdownMimeType = "text/markdown; charset=utf-8"
	ZipMimeType      = "application/zip"
	ArchiveFilename  = "project_documentation_all.zip"
	archiveFolder    = "documentation"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates the document has no content entry to export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPublisherUnavailable indicates no object storage is configured.
	ErrPublisherUnavailable = errors.New("export publisher unavailable")
)
