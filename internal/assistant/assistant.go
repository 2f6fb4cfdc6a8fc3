// Package assistant answers questions about a project through a text
// completion model, grounded on the project's own documentation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"docshub/api/internal/document"
	"docshub/api/internal/store"
)

// DefaultContextBudget caps the context string sent with a question, in bytes.
const DefaultContextBudget = 12000

const noMatchContext = "No exact keyword match found in primary docs, please use your general knowledge of the project structure."

var (
	ErrNotConfigured = errors.New("assistant not configured")
	ErrEmptyPrompt   = errors.New("prompt is required")
)

// Completer turns a system instruction and a user prompt into an answer.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Answer is the assistant's reply and the document it drew on, if any.
type Answer struct {
	Text   string `json:"answer"`
	Source string `json:"source,omitempty"`
}

type Service struct {
	completer Completer
	budget    int
}

// NewService creates the assistant. completer may be nil, which leaves the
// assistant unavailable.
func NewService(completer Completer) *Service {
	return &Service{completer: completer, budget: DefaultContextBudget}
}

func (s *Service) Available() bool {
	return s.completer != nil
}

func (s *Service) Ask(ctx context.Context, project store.Project, prompt string) (Answer, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Answer{}, ErrEmptyPrompt
	}
	if s.completer == nil {
		return Answer{}, ErrNotConfigured
	}
	background, source := BuildContext(project, prompt, s.budget)
	system := fmt.Sprintf("You are \"Document AI\". Use this project context to answer:\n\nCONTEXT:\n%s", background)
	text, err := s.completer.Complete(ctx, system, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("complete: %w", err)
	}
	return Answer{Text: text, Source: source}, nil
}

// BuildContext describes project for the model: its name and description,
// the table of contents, and the section of the first document whose title
// or content mentions prompt. The result is cut to budget bytes.
func BuildContext(project store.Project, prompt string, budget int) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", project.Name)
	if strings.TrimSpace(project.Description) != "" {
		fmt.Fprintf(&b, "Description: %s\n", project.Description)
	}
	b.WriteString("Documents:\n")
	for _, meta := range project.Documents {
		fmt.Fprintf(&b, "- %s (%s)\n", meta.Title, meta.Category)
	}
	b.WriteString("\n")

	source := ""
	for _, meta := range project.Documents {
		content, _ := project.DocumentContent.Get(meta.ID)
		text := content.Content
		at, _ := document.IndexFold(text, prompt)
		if at < 0 && !document.ContainsFold(meta.Title, prompt) {
			continue
		}
		source = meta.Title
		snippet := ""
		if at >= 0 {
			start := max(0, at-50)
			end := min(len(text), at+150)
			for start > 0 && !utf8.RuneStart(text[start]) {
				start--
			}
			for end < len(text) && !utf8.RuneStart(text[end]) {
				end++
			}
			snippet = text[start:end] + "..."
		}
		fmt.Fprintf(&b, "Relevant section from %s: %s\n", meta.Title, snippet)
		break
	}
	if source == "" {
		b.WriteString(noMatchContext + "\n")
	}
	return truncate(b.String(), budget), source
}

func truncate(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}
	cut := budget
	for cut > 0 && (text[cut]&0xC0) == 0x80 {
		cut--
	}
	return text[:cut]
}
