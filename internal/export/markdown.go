package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"docshub/api/internal/store"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// fileTitle turns a title into a file name stem: whitespace runs become
// underscores and path separators are dropped.
func fileTitle(title string) string {
	title = whitespaceRun.ReplaceAllString(title, "_")
	return strings.NewReplacer("/", "_", "\\", "_").Replace(title)
}

// DocumentMarkdown exports one document's content as a markdown file.
func DocumentMarkdown(project store.Project, documentID string) (*Result, error) {
	content, ok := project.DocumentContent.Get(documentID)
	if !ok {
		return nil, ErrContentUnavailable
	}
	return &Result{
		Data:     []byte(content.Content),
		Filename: fmt.Sprintf("%s_%s.md", fileTitle(content.Title), documentID),
		MimeType: MarkdownMimeType,
	}, nil
}

// Archive zips every listed document into documentation/<Title>.md. A
// document without content is written as an empty file.
func Archive(project store.Project, modified time.Time) (*Result, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int, len(project.Documents))
	for _, meta := range project.Documents {
		stem := fileTitle(meta.Title)
		used[stem]++
		if n := used[stem]; n > 1 {
			stem = fmt.Sprintf("%s_%d", stem, n)
		}
		content, _ := project.DocumentContent.Get(meta.ID)

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     archiveFolder + "/" + stem + ".md",
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", stem, err)
		}
		if _, err := w.Write([]byte(content.Content)); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", stem, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &Result{Data: buf.Bytes(), Filename: ArchiveFilename, MimeType: ZipMimeType}, nil
}
