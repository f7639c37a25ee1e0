package gedcom

import (
	"slices"
	"sort"
	"strings"
)

// DefaultLocale is the key under which the primary display name is stored.
const DefaultLocale = "default"

// UnknownLabel is shown for people without any usable name.
const UnknownLabel = "Unknown"

// Person is a single individual of a family tree. Relation fields hold person ids;
// an empty string means the relation is not set.
type Person struct {
	ID      string            `json:"id"`
	Names   map[string]string `json:"names"`
	Given   string            `json:"given,omitempty"`
	Surname string            `json:"surname,omitempty"`
	Gender  string            `json:"gender,omitempty"`

	BirthYear  string `json:"birthYear,omitempty"`
	BirthPlace string `json:"birthPlace,omitempty"`
	DeathDate  string `json:"deathDate,omitempty"`
	DeathPlace string `json:"deathPlace,omitempty"`
	Deceased   bool   `json:"deceased,omitempty"` // DEAT Y: died, date unknown

	Details       string `json:"details,omitempty"`
	Profession    string `json:"profession,omitempty"`
	ArchiveSource string `json:"archiveSource,omitempty"`
	DocumentCode  string `json:"documentCode,omitempty"`
	Reliability   string `json:"reliability,omitempty"`
	Color         string `json:"color,omitempty"`

	Father   string   `json:"father,omitempty"`
	Mother   string   `json:"mother,omitempty"`
	Spouse   string   `json:"spouse,omitempty"`
	Children []string `json:"children"`
}

// Clone returns a deep copy of p.
func (p Person) Clone() Person {
	c := p
	if p.Names != nil {
		c.Names = make(map[string]string, len(p.Names))
		for k, v := range p.Names {
			c.Names[k] = v
		}
	}
	c.Children = slices.Clone(p.Children)
	return c
}

// Name returns the display name for locale, falling back to the default locale
// and then to any other non-empty locale in key order.
func (p Person) Name(locale string) string {
	if n := strings.TrimSpace(p.Names[locale]); n != "" {
		return n
	}
	if n := strings.TrimSpace(p.Names[DefaultLocale]); n != "" {
		return n
	}
	keys := make([]string, 0, len(p.Names))
	for k := range p.Names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if n := strings.TrimSpace(p.Names[k]); n != "" {
			return n
		}
	}
	return joinName(p.Given, p.Surname)
}

// Label is Name with the "Unknown" placeholder applied.
func (p Person) Label(locale string) string {
	if n := p.Name(locale); n != "" {
		return n
	}
	return UnknownLabel
}

// HasName reports whether at least one display name or name part is non-empty.
func (p Person) HasName() bool {
	return p.Name(DefaultLocale) != ""
}

// SetName stores the display name for locale.
func (p *Person) SetName(locale, name string) {
	if p.Names == nil {
		p.Names = make(map[string]string)
	}
	p.Names[locale] = name
}

// HasChild reports whether id is in p.Children.
func (p Person) HasChild(id string) bool {
	return slices.Contains(p.Children, id)
}

// NormalizeGender maps free-form gender values to "M", "F" or "" (unknown).
func NormalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "male", "man", "м", "муж", "мужской", "ч", "чоловік":
		return "M"
	case "f", "female", "woman", "ж", "жен", "женский", "жінка":
		return "F"
	default:
		return ""
	}
}

func joinName(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
