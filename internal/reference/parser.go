// Package reference recognizes explicit category prefixes ("idea:", "howto:")
// and derives record fields from the text that follows them.
package reference

import (
	"strings"

	"github.com/pbaille/leaknote/internal/domain"
)

// Match is the result of a successful prefix parse
type Match struct {
	Category   domain.Category
	Record     domain.Record
	Confidence float64
}

// separators split how-to and snippet bodies into title and content, in priority order
var separators = []string{"→", "->", " - ", ": "}

// Parse checks text for a category prefix. A false return is not an error:
// it means the note must go through classification.
func Parse(text string) (*Match, bool) {
	c, body, ok := splitPrefix(text)
	if !ok {
		return nil, false
	}
	return &Match{
		Category:   c,
		Record:     Extract(c, body),
		Confidence: 1.0,
	}, true
}

// Prefix returns the "token:" prefix for a category
func Prefix(c domain.Category) string {
	return c.Token() + ":"
}

// StripPrefix removes a recognized category prefix, returning the trimmed body
func StripPrefix(text string) string {
	if _, body, ok := splitPrefix(text); ok {
		return body
	}
	return strings.TrimSpace(text)
}

func splitPrefix(text string) (domain.Category, string, bool) {
	trimmed := strings.TrimSpace(text)

	for _, c := range domain.Categories {
		p := Prefix(c)
		if len(trimmed) >= len(p) && strings.EqualFold(trimmed[:len(p)], p) {
			return c, strings.TrimSpace(trimmed[len(p):]), true
		}
	}
	return "", "", false
}

// Extract derives the fields of a record for category c from a note body.
// Every body yields a record; there is no rejection path.
func Extract(c domain.Category, body string) domain.Record {
	body = strings.TrimSpace(body)

	switch c {
	case domain.People:
		return &domain.Person{
			Name:    truncate(body, 100),
			Context: body,
		}
	case domain.Projects:
		return &domain.Project{
			Name:       truncate(body, 100),
			Status:     domain.ProjectActive,
			NextAction: body,
			Notes:      body,
		}
	case domain.Admin:
		return &domain.AdminTask{
			Name:   truncate(body, 100),
			Status: domain.AdminPending,
			Notes:  body,
		}
	case domain.Decisions:
		decision, rationale := splitBecause(body)
		return &domain.Decision{
			Title:     truncate(decision, 100),
			Decision:  decision,
			Rationale: rationale,
		}
	case domain.HowTos:
		title, content := splitTitle(body)
		return &domain.HowTo{Title: title, Content: content}
	case domain.Snippets:
		title, content := splitTitle(body)
		return &domain.Snippet{Title: title, Content: content}
	default:
		return &domain.Idea{
			Title:       truncate(body, 100),
			OneLiner:    truncate(body, 200),
			Elaboration: body,
		}
	}
}

func splitBecause(body string) (string, *string) {
	const sep = " because "
	idx := indexFold(body, sep)
	if idx < 0 {
		return body, nil
	}
	rationale := strings.TrimSpace(body[idx+len(sep):])
	return strings.TrimSpace(body[:idx]), &rationale
}

// indexFold is a case-insensitive strings.Index for an ASCII needle.
// Offsets refer to s itself, so they stay valid for non-ASCII input.
func indexFold(s, needle string) int {
	for i := 0; i+len(needle) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func splitTitle(body string) (string, string) {
	for _, sep := range separators {
		if before, after, found := strings.Cut(body, sep); found {
			return strings.TrimSpace(before), strings.TrimSpace(after)
		}
	}
	return truncate(body, 100), body
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
