// Package document holds the in-memory model of one project's documents,
// their content and the notes attached to them.
package document

import (
	"errors"
	"strings"
)

// Meta is the sidebar entry for a document. It never carries content.
type Meta struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Icon     Icon     `json:"icon"`
	Category Category `json:"category"`
}

type Content struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Note struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsCustom  bool   `json:"isCustom"`
	Completed bool   `json:"completed"`
}

// Snapshot is the persisted triple of a project's collections.
type Snapshot struct {
	Documents       []Meta     `json:"documents"`
	DocumentContent ContentMap `json:"documentContent"`
	NoteLists       NoteLists  `json:"todoLists"`
}

// ValidationError reports input that can never succeed as given.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validation(message string) *ValidationError {
	return &ValidationError{Message: message}
}

var (
	ErrNotFound = errors.New("document not found")

	ErrBuiltInDocument = validation("Cannot delete built-in documents. You can only delete documents you created.")
	ErrBuiltInNote     = validation("Cannot delete built-in todo lists")
	ErrTitleRequired   = validation("Please enter a document title")
	ErrNoteTitle       = validation("Please enter a note title")
	ErrNoteTooLong     = validation("Note content must be 50 words or less")
)

// FallbackDocumentID is selected when a deletion leaves no documents.
const FallbackDocumentID = "overview"

// MaxNoteWords bounds the whitespace-separated word count of a note.
const MaxNoteWords = 50

type builtIn struct {
	meta    Meta
	content string
}

var builtIns = []builtIn{
	{Meta{"product-platform", "Product & Platform Overview", IconLayers, CategoryProduct}, "# Product & Platform Overview\n\n## Product Vision\n*Define your product vision, mission, and value proposition*\n"},
	{Meta{"overview", "Architecture Overview", IconLayers, CategoryArchitecture}, "# Architecture Overview\n\n## Executive Summary\n"},
	{Meta{"custom-architecture", "Custom Architecture Template", IconCode, CategoryArchitecture}, "# Your Custom Architecture - Editable Template\n\nThis is a blank template for you to document your own architecture. Edit this section to add your specific system design, technologies, and infrastructure details.\n"},
	{Meta{"code-standards", "Code Guidelines & Standards", IconCode, CategoryDevelopment}, "# Code Guidelines & Standards\n\n## Naming Conventions\n"},
	{Meta{"backend-setup", "Backend Setup", IconCode, CategoryBackend}, "# Backend Setup\n\n## Project Structure\n"},
	{Meta{"api-gateway", "API Gateway Configuration", IconCloud, CategoryBackend}, "# API Gateway Configuration\n\n## Configuration (application.yml)\n"},
	{Meta{"database-design", "Database Design", IconDatabase, CategoryDatabase}, "# Database Design\n"},
	{Meta{"data-ingestion", "Data Ingestion Service", IconDatabase, CategoryServices}, "# Data Ingestion Service\n\n## Service Architecture\n"},
	{Meta{"apis", "APIs", IconCode, CategoryAPIDocs}, "# APIs\n\n## API Overview\n"},
	{Meta{"security", "Security & Authentication", IconShield, CategorySecurity}, "# Security & Authentication\n\n## Spring Security Configuration\n"},
	{Meta{"frontend-architecture", "Frontend Architecture", IconCode, CategoryFrontend}, "# Frontend Architecture\n\n## Technology Stack\n"},
	{Meta{"monitoring-observability", "Monitoring & Observability", IconCloud, CategoryDevOps}, "# Monitoring & Observability\n\n## Metrics Collection\n"},
	{Meta{"deployment", "Deployment", IconCloud, CategoryDevOps}, "# Deployment\n\n## Dockerfile for Spring Boot Application\n"},
	{Meta{"admin-documentation", "Admin Documentation", IconShield, CategoryAdmin}, "# Admin Documentation\n\n## Admin Console Overview\n"},
	{Meta{"maintenance-operation", "Maintenance & Operation", IconFileText, CategoryOperations}, "# Maintenance & Operation\n\n## Regular Maintenance Tasks\n"},
	{Meta{"billing-subscription", "Billing & Subscription", IconFileText, CategoryBusiness}, "# Billing & Subscription\n\n## Pricing Plans\n"},
	{Meta{"integrations-extensions", "Integrations & Extensions", IconCode, CategoryIntegrations}, "# Integrations & Extensions\n\n## Third-Party Integrations\n"},
	{Meta{"future-scaling", "Future & Scaling", IconLayers, CategoryStrategy}, "# Future & Scaling\n\n## Product Roadmap\n"},
	{Meta{"implementation-guide", "Implementation Guide", IconFileText, CategoryGuides}, "# Implementation Guide\n\n## Phase 1: Foundation\n"},
}

var builtInIDs = func() map[string]struct{} {
	ids := make(map[string]struct{}, len(builtIns))
	for _, item := range builtIns {
		ids[item.meta.ID] = struct{}{}
	}
	return ids
}()

// IsBuiltIn reports whether id belongs to the fixed, non-deletable set.
func IsBuiltIn(id string) bool {
	_, ok := builtInIDs[id]
	return ok
}

func BuiltInIDs() []string {
	ids := make([]string, 0, len(builtIns))
	for _, item := range builtIns {
		ids = append(ids, item.meta.ID)
	}
	return ids
}

// DefaultSnapshot returns the built-in document set with its seed content
// and no notes.
func DefaultSnapshot() Snapshot {
	snapshot := Snapshot{Documents: make([]Meta, 0, len(builtIns))}
	for _, item := range builtIns {
		snapshot.Documents = append(snapshot.Documents, item.meta)
		snapshot.DocumentContent.Set(item.meta.ID, Content{Title: item.meta.Title, Content: item.content})
	}
	return snapshot
}

// Clone deep-copies the snapshot, including every note slice.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Documents:       append([]Meta(nil), s.Documents...),
		DocumentContent: s.DocumentContent.Clone(),
		NoteLists:       s.NoteLists.Clone(),
	}
	if out.Documents == nil {
		out.Documents = []Meta{}
	}
	for _, key := range out.NoteLists.Keys() {
		notes, _ := out.NoteLists.Get(key)
		out.NoteLists.Set(key, append([]Note{}, notes...))
	}
	return out
}

// Slug lowercases title and collapses every whitespace run into a dash.
func Slug(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

// WordCount counts whitespace-separated, non-empty tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Filter keeps documents whose title or category contains term, ignoring
// case. An empty term keeps everything.
func Filter(documents []Meta, term string) []Meta {
	needle := strings.TrimSpace(term)
	out := make([]Meta, 0, len(documents))
	for _, doc := range documents {
		if ContainsFold(doc.Title, needle) || ContainsFold(string(doc.Category), needle) {
			out = append(out, doc)
		}
	}
	return out
}

// GroupCategories returns the distinct categories of documents in first-seen
// order.
func GroupCategories(documents []Meta) []Category {
	seen := make(map[Category]struct{})
	var out []Category
	for _, doc := range documents {
		if _, ok := seen[doc.Category]; ok {
			continue
		}
		seen[doc.Category] = struct{}{}
		out = append(out, doc.Category)
	}
	return out
}
