package domain

import "strings"

// Category is the storage name of a note category
type Category string

const (
	People    Category = "people"
	Projects  Category = "projects"
	Ideas     Category = "ideas"
	Admin     Category = "admin"
	Decisions Category = "decisions"
	HowTos    Category = "howtos"
	Snippets  Category = "snippets"
)

// Categories lists every category in prefix order
var Categories = []Category{People, Projects, Ideas, Admin, Decisions, HowTos, Snippets}

var tokens = map[Category]string{
	People:    "person",
	Projects:  "project",
	Ideas:     "idea",
	Admin:     "admin",
	Decisions: "decision",
	HowTos:    "howto",
	Snippets:  "snippet",
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := tokens[c]
	return ok
}

// Token returns the singular form used as a prefix and for display
func (c Category) Token() string {
	if t, ok := tokens[c]; ok {
		return t
	}
	return string(c)
}

// IsReference reports whether the category holds reference material
// (decisions, how-tos, snippets) rather than dynamic items.
func (c Category) IsReference() bool {
	return c == Decisions || c == HowTos || c == Snippets
}

// CategoryForToken maps a singular token ("idea") to its category
func CategoryForToken(token string) (Category, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	for c, t := range tokens {
		if t == token {
			return c, true
		}
	}
	return "", false
}

// ParseCategory accepts either the singular token or the plural storage name
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c := Category(s); c.Valid() {
		return c, true
	}
	return CategoryForToken(s)
}

// Display returns the user-facing name of a possibly empty category
func Display(c Category) string {
	if c == "" {
		return "unknown"
	}
	return c.Token()
}
