package responder

import (
	"fmt"
	"strings"

	"github.com/pbaille/leaknote/internal/domain"
)

// QueryHelp lists the query commands
const QueryHelp = "Available commands:\n" +
	"• ?recall <query> - Search decisions, howtos, snippets\n" +
	"• ?search <query> - Search all categories\n" +
	"• ?people <query> - Search people\n" +
	"• ?projects [status] - List projects\n" +
	"• ?ideas - List recent ideas\n" +
	"• ?admin [due] - List admin tasks"

// UnknownQuery answers a ?-message that is not a known command
func UnknownQuery() string {
	return "❓ Unknown command\n\n" + QueryHelp
}

const maxSummaries = 5

// SearchResults renders matches for query. Reference material is shown in
// full; anything else as a short summary of the top matches.
func SearchResults(query string, entries []domain.Entry) string {
	if len(entries) == 0 {
		return "🔍 No results found for: " + query
	}

	allReference := true
	for _, e := range entries {
		if !e.Record.Category().IsReference() {
			allReference = false
			break
		}
	}
	if allReference {
		return referenceResults(query, entries)
	}

	if len(entries) > maxSummaries {
		entries = entries[:maxSummaries]
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, summary(e.Record))
	}
	return "🔍 Results for: " + query + "\n\n" + strings.Join(parts, "\n\n")
}

func summary(r domain.Record) string {
	switch rec := r.(type) {
	case *domain.HowTo:
		return fmt.Sprintf("[HOWTO] %s\n%s", rec.Title, rec.Content)
	case *domain.Snippet:
		return fmt.Sprintf("[SNIPPET] %s\n%s", rec.Title, rec.Content)
	case *domain.Decision:
		return fmt.Sprintf("[DECISION] %s\n%s\nRationale: %s", rec.Title, rec.Decision, orNone(rec.Rationale))
	case *domain.Person:
		return fmt.Sprintf("[PERSON] %s\nContext: %s\nFollow-ups: %s", rec.Name, rec.Context, orNone(rec.FollowUps))
	case *domain.Project:
		return fmt.Sprintf("[PROJECT] %s (%s)\nNext: %s", rec.Name, rec.Status, rec.NextAction)
	case *domain.Idea:
		return fmt.Sprintf("[IDEA] %s\n%s", rec.Title, rec.OneLiner)
	case *domain.AdminTask:
		return "[ADMIN] " + rec.Name + due(rec.DueDate)
	default:
		return r.DisplayName()
	}
}

func referenceResults(query string, entries []domain.Entry) string {
	var b strings.Builder
	b.WriteString("🔍 Results for: " + query + "\n\n")
	for _, e := range entries {
		switch rec := e.Record.(type) {
		case *domain.Decision:
			fmt.Fprintf(&b, "## [DECISION] %s\n\n**Decision:** %s\n", rec.Title, rec.Decision)
			if rec.Rationale != nil && *rec.Rationale != "" {
				fmt.Fprintf(&b, "**Rationale:** %s\n", *rec.Rationale)
			}
			if rec.Context != nil && *rec.Context != "" {
				fmt.Fprintf(&b, "**Context:** %s\n", *rec.Context)
			}
		case *domain.HowTo:
			fmt.Fprintf(&b, "## [HOWTO] %s\n\n%s\n", rec.Title, rec.Content)
		case *domain.Snippet:
			fmt.Fprintf(&b, "## [SNIPPET] %s\n\n%s\n", rec.Title, rec.Content)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ProjectList groups projects under their status
func ProjectList(entries []domain.Entry) string {
	if len(entries) == 0 {
		return "📋 No projects found."
	}

	lines := []string{"📋 **Projects**"}
	current := ""
	for _, e := range entries {
		p, ok := e.Record.(*domain.Project)
		if !ok {
			continue
		}
		if p.Status != current {
			current = p.Status
			lines = append(lines, "", "**"+strings.ToUpper(current)+"**")
		}
		next := ""
		if p.NextAction != "" {
			next = " → " + p.NextAction
		}
		lines = append(lines, "• "+p.Name+next)
	}
	return strings.Join(lines, "\n")
}

// IdeaList lists ideas with their capture date
func IdeaList(entries []domain.Entry) string {
	if len(entries) == 0 {
		return "💡 No ideas captured yet."
	}

	lines := []string{"💡 **Ideas**", ""}
	for _, e := range entries {
		i, ok := e.Record.(*domain.Idea)
		if !ok {
			continue
		}
		oneLiner := ""
		if i.OneLiner != "" {
			oneLiner = ": " + i.OneLiner
		}
		lines = append(lines, fmt.Sprintf("• %s%s (%s)", i.Title, oneLiner, e.CreatedAt.Format("Jan 02")))
	}
	return strings.Join(lines, "\n")
}

// AdminList lists pending admin tasks
func AdminList(entries []domain.Entry) string {
	if len(entries) == 0 {
		return "✅ No pending admin tasks."
	}

	lines := []string{"📝 **Admin Tasks**", ""}
	for _, e := range entries {
		a, ok := e.Record.(*domain.AdminTask)
		if !ok {
			continue
		}
		lines = append(lines, "• "+a.Name+due(a.DueDate))
	}
	return strings.Join(lines, "\n")
}

func due(d *string) string {
	if d == nil || *d == "" {
		return ""
	}
	return " (due " + *d + ")"
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return "none"
	}
	return *s
}
