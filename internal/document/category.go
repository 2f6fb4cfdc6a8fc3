package document

import (
	"encoding/json"
	"strings"
)

// Category is the closed set of document categories. Anything outside the
// set decodes to CategoryCustom.
type Category string

const (
	CategoryProduct      Category = "Product"
	CategoryArchitecture Category = "Architecture"
	CategoryDevelopment  Category = "Development"
	CategoryBackend      Category = "Backend"
	CategoryDatabase     Category = "Database"
	CategoryServices     Category = "Services"
	CategoryAPIDocs      Category = "API Documentation"
	CategorySecurity     Category = "Security"
	CategoryFrontend     Category = "Frontend"
	CategoryDevOps       Category = "DevOps"
	CategoryAdmin        Category = "Admin"
	CategoryOperations   Category = "Operations"
	CategoryBusiness     Category = "Business"
	CategoryIntegrations Category = "Integrations"
	CategoryStrategy     Category = "Strategy"
	CategoryGuides       Category = "Guides"
	CategoryCustom       Category = "Custom"
)

// Icon is the closed set of display icon tokens. Unknown tokens decode to
// IconFileText.
type Icon string

const (
	IconLayers     Icon = "Layers"
	IconCode       Icon = "Code"
	IconDatabase   Icon = "Database"
	IconShield     Icon = "Shield"
	IconCloud      Icon = "Cloud"
	IconBox        Icon = "Box"
	IconServer     Icon = "Server"
	IconFileText   Icon = "FileText"
	IconCpu        Icon = "Cpu"
	IconFileCode   Icon = "FileCode"
	IconLayout     Icon = "Layout"
	IconTerminal   Icon = "Terminal"
	IconUserCheck  Icon = "UserCheck"
	IconSettings   Icon = "Settings"
	IconBriefcase  Icon = "Briefcase"
	IconLink       Icon = "Link"
	IconTrendingUp Icon = "TrendingUp"
	IconBookOpen   Icon = "BookOpen"
	IconFolder     Icon = "Folder"
)

// Style is the presentation pair attached to a category.
type Style struct {
	Icon  Icon   `json:"icon"`
	Color string `json:"color"`
}

var categoryStyles = map[Category]Style{
	CategoryProduct:      {Icon: IconLayers, Color: "bg-indigo-500"},
	CategoryArchitecture: {Icon: IconBox, Color: "bg-blue-500"},
	CategoryDevelopment:  {Icon: IconCode, Color: "bg-emerald-500"},
	CategoryBackend:      {Icon: IconServer, Color: "bg-orange-500"},
	CategoryDatabase:     {Icon: IconDatabase, Color: "bg-cyan-500"},
	CategoryServices:     {Icon: IconCpu, Color: "bg-purple-500"},
	CategoryAPIDocs:      {Icon: IconFileCode, Color: "bg-rose-500"},
	CategorySecurity:     {Icon: IconShield, Color: "bg-amber-500"},
	CategoryFrontend:     {Icon: IconLayout, Color: "bg-pink-500"},
	CategoryDevOps:       {Icon: IconTerminal, Color: "bg-slate-700"},
	CategoryAdmin:        {Icon: IconUserCheck, Color: "bg-violet-500"},
	CategoryOperations:   {Icon: IconSettings, Color: "bg-teal-500"},
	CategoryBusiness:     {Icon: IconBriefcase, Color: "bg-blue-600"},
	CategoryIntegrations: {Icon: IconLink, Color: "bg-indigo-400"},
	CategoryStrategy:     {Icon: IconTrendingUp, Color: "bg-fuchsia-500"},
	CategoryGuides:       {Icon: IconBookOpen, Color: "bg-green-500"},
	CategoryCustom:       {Icon: IconFileText, Color: "bg-slate-400"},
}

var knownIcons = map[Icon]struct{}{
	IconLayers: {}, IconCode: {}, IconDatabase: {}, IconShield: {}, IconCloud: {},
	IconBox: {}, IconServer: {}, IconFileText: {}, IconCpu: {}, IconFileCode: {},
	IconLayout: {}, IconTerminal: {}, IconUserCheck: {}, IconSettings: {},
	IconBriefcase: {}, IconLink: {}, IconTrendingUp: {}, IconBookOpen: {}, IconFolder: {},
}

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{
		CategoryProduct, CategoryArchitecture, CategoryDevelopment, CategoryBackend,
		CategoryDatabase, CategoryServices, CategoryAPIDocs, CategorySecurity,
		CategoryFrontend, CategoryDevOps, CategoryAdmin, CategoryOperations,
		CategoryBusiness, CategoryIntegrations, CategoryStrategy, CategoryGuides,
		CategoryCustom,
	}
}

func ParseCategory(value string) Category {
	category := Category(strings.TrimSpace(value))
	if _, ok := categoryStyles[category]; ok {
		return category
	}
	return CategoryCustom
}

func (c Category) Known() bool {
	_, ok := categoryStyles[c]
	return ok
}

func (c Category) Style() Style {
	if style, ok := categoryStyles[c]; ok {
		return style
	}
	return categoryStyles[CategoryCustom]
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ParseCategory(raw)
	return nil
}

func ParseIcon(value string) Icon {
	icon := Icon(strings.TrimSpace(value))
	if _, ok := knownIcons[icon]; ok {
		return icon
	}
	return IconFileText
}

func (i Icon) Known() bool {
	_, ok := knownIcons[i]
	return ok
}

func (i *Icon) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = ParseIcon(raw)
	return nil
}
