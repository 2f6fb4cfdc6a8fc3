package store

import (
	"errors"
	"strings"
	"time"

	"docshub/api/internal/document"
	"docshub/api/internal/util"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrNameRequired  = errors.New("project name is required")
)

const (
	DefaultProjectIcon  = document.IconLayers
	DefaultProjectColor = "bg-blue-500"
)

// ProjectIcons is the closed set of icons a project may display.
var ProjectIcons = []document.Icon{
	document.IconLayers, document.IconCode, document.IconDatabase, document.IconShield,
	document.IconCloud, document.IconBox, document.IconServer, document.IconBookOpen,
	document.IconFolder,
}

// ProjectColors is the closed set of color tokens a project may use.
var ProjectColors = []string{
	"bg-blue-500", "bg-emerald-500", "bg-purple-500", "bg-rose-500", "bg-orange-500",
	"bg-cyan-500", "bg-indigo-500", "bg-pink-500", "bg-teal-500", "bg-amber-500",
}

type Preferences struct {
	DarkMode    bool   `json:"darkMode"`
	SelectedDoc string `json:"selectedDoc"`
}

func DefaultPreferences() Preferences {
	return Preferences{DarkMode: false, SelectedDoc: document.FallbackDocumentID}
}

// User never serializes its password hash.
type User struct {
	ID               string      `json:"id"`
	Username         string      `json:"username"`
	PasswordHash     string      `json:"-"`
	Role             string      `json:"role"`
	Preferences      Preferences `json:"preferences"`
	CurrentProjectID *string     `json:"currentProjectId"`
	CreatedAt        time.Time   `json:"createdAt"`
}

type Project struct {
	ID              string              `json:"id"`
	OwnerID         string              `json:"ownerId"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Icon            document.Icon       `json:"icon"`
	Color           string              `json:"color"`
	Documents       []document.Meta     `json:"documents"`
	DocumentContent document.ContentMap `json:"documentContent"`
	NoteLists       document.NoteLists  `json:"todoLists"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Snapshot returns a deep copy of the project's three collections.
func (p Project) Snapshot() document.Snapshot {
	return document.Snapshot{
		Documents:       p.Documents,
		DocumentContent: p.DocumentContent,
		NoteLists:       p.NoteLists,
	}.Clone()
}

// ProjectDraft carries create input. Empty optional fields take defaults.
type ProjectDraft struct {
	Name        string
	Description string
	Icon        string
	Color       string
}

// ProjectPatch is a sparse replace: nil fields are left untouched.
type ProjectPatch struct {
	Name            *string
	Description     *string
	Icon            *string
	Color           *string
	Documents       *[]document.Meta
	DocumentContent *document.ContentMap
	NoteLists       *document.NoteLists
}

// SnapshotPatch replaces only the three collections.
func SnapshotPatch(snapshot document.Snapshot) ProjectPatch {
	documents := snapshot.Documents
	if documents == nil {
		documents = []document.Meta{}
	}
	return ProjectPatch{
		Documents:       &documents,
		DocumentContent: &snapshot.DocumentContent,
		NoteLists:       &snapshot.NoteLists,
	}
}

func (p ProjectPatch) TouchesCollections() bool {
	return p.Documents != nil || p.DocumentContent != nil || p.NoteLists != nil
}

// Normalize trims the name, maps unknown icon and color tokens to the
// defaults and rejects a blank name.
func (p ProjectPatch) Normalize() (ProjectPatch, error) {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return ProjectPatch{}, ErrNameRequired
		}
		p.Name = &name
	}
	if p.Icon != nil {
		icon := string(projectIcon(*p.Icon))
		p.Icon = &icon
	}
	if p.Color != nil {
		color := projectColor(*p.Color)
		p.Color = &color
	}
	if p.Documents != nil && *p.Documents == nil {
		empty := []document.Meta{}
		p.Documents = &empty
	}
	return p, nil
}

// Apply overlays a normalized patch and refreshes UpdatedAt.
func (p *Project) Apply(patch ProjectPatch, now time.Time) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Icon != nil {
		p.Icon = document.Icon(*patch.Icon)
	}
	if patch.Color != nil {
		p.Color = *patch.Color
	}
	if patch.Documents != nil {
		p.Documents = append([]document.Meta{}, (*patch.Documents)...)
	}
	if patch.DocumentContent != nil {
		p.DocumentContent = patch.DocumentContent.Clone()
	}
	if patch.NoteLists != nil {
		p.NoteLists = patch.NoteLists.Clone()
	}
	p.UpdatedAt = now
}

// NewProject validates draft and fills defaults. Projects start with no
// documents; seeding the built-in set is left to the creating surface.
func NewProject(ownerID string, draft ProjectDraft, now time.Time) (Project, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return Project{}, ErrNameRequired
	}
	return Project{
		ID:          util.NewID(""),
		OwnerID:     ownerID,
		Name:        name,
		Description: draft.Description,
		Icon:        projectIcon(draft.Icon),
		Color:       projectColor(draft.Color),
		Documents:   []document.Meta{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ProjectList is an owner's projects in creation order plus the current
// selection.
type ProjectList struct {
	Projects         []Project `json:"projects"`
	CurrentProjectID *string   `json:"currentProjectId"`
}

// PreferencesPatch is a sparse update of a user's preferences and current
// project. SetCurrentProject distinguishes "clear" from "leave alone".
type PreferencesPatch struct {
	Preferences       *Preferences
	SetCurrentProject bool
	CurrentProjectID  *string
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeUsername is the canonical stored and compared form.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// nextSelection picks the selection after deletedID is removed from an
// owner's projects: unchanged unless it pointed at deletedID, then the first
// remaining project or nil.
func nextSelection(current *string, deletedID string, remaining []Project) *string {
	if current == nil || *current != deletedID {
		return current
	}
	if len(remaining) == 0 {
		return nil
	}
	id := remaining[0].ID
	return &id
}

func projectIcon(value string) document.Icon {
	icon := document.Icon(strings.TrimSpace(value))
	for _, known := range ProjectIcons {
		if icon == known {
			return icon
		}
	}
	return DefaultProjectIcon
}

func projectColor(value string) string {
	color := strings.TrimSpace(value)
	for _, known := range ProjectColors {
		if color == known {
			return color
		}
	}
	return DefaultProjectColor
}

func strPtr(value string) *string {
	return &value
}
