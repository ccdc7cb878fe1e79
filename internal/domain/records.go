package domain

import (
	"fmt"
	"strings"
)

// Record is a structured entity filed under one category
type Record interface {
	Category() Category
	// DisplayName is the name or title shown in confirmations
	DisplayName() string
	RecordTags() []string
}

// ProjectStatus values
const (
	ProjectActive  = "active"
	ProjectWaiting = "waiting"
	ProjectBlocked = "blocked"
	ProjectSomeday = "someday"
	ProjectDone    = "done"
)

// Admin task status values
const (
	AdminPending = "pending"
	AdminDone    = "done"
)

// Person is a record in the people table
type Person struct {
	Name      string   `json:"name"`
	Context   string   `json:"context"`
	FollowUps *string  `json:"follow_ups,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Project is a record in the projects table
type Project struct {
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	NextAction string   `json:"next_action"`
	Notes      string   `json:"notes"`
	Tags       []string `json:"tags,omitempty"`
}

// Idea is a record in the ideas table
type Idea struct {
	Title       string   `json:"title"`
	OneLiner    string   `json:"one_liner"`
	Elaboration string   `json:"elaboration"`
	Tags        []string `json:"tags,omitempty"`
}

// AdminTask is a record in the admin table
type AdminTask struct {
	Name    string   `json:"name"`
	DueDate *string  `json:"due_date,omitempty"`
	Status  string   `json:"status"`
	Notes   string   `json:"notes"`
	Tags    []string `json:"tags,omitempty"`
}

// Decision is a record in the decisions table
type Decision struct {
	Title     string   `json:"title"`
	Decision  string   `json:"decision"`
	Rationale *string  `json:"rationale,omitempty"`
	Context   *string  `json:"context,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// HowTo is a record in the howtos table
type HowTo struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Snippet is a record in the snippets table
type Snippet struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

func (*Person) Category() Category    { return People }
func (*Project) Category() Category   { return Projects }
func (*Idea) Category() Category      { return Ideas }
func (*AdminTask) Category() Category { return Admin }
func (*Decision) Category() Category  { return Decisions }
func (*HowTo) Category() Category     { return HowTos }
func (*Snippet) Category() Category   { return Snippets }

func (r *Person) DisplayName() string    { return r.Name }
func (r *Project) DisplayName() string   { return r.Name }
func (r *Idea) DisplayName() string      { return r.Title }
func (r *AdminTask) DisplayName() string { return r.Name }
func (r *Decision) DisplayName() string  { return r.Title }
func (r *HowTo) DisplayName() string     { return r.Title }
func (r *Snippet) DisplayName() string   { return r.Title }

func (r *Person) RecordTags() []string    { return r.Tags }
func (r *Project) RecordTags() []string   { return r.Tags }
func (r *Idea) RecordTags() []string      { return r.Tags }
func (r *AdminTask) RecordTags() []string { return r.Tags }
func (r *Decision) RecordTags() []string  { return r.Tags }
func (r *HowTo) RecordTags() []string     { return r.Tags }
func (r *Snippet) RecordTags() []string   { return r.Tags }

// SetTags replaces the tags on any record type
func SetTags(r Record, tags []string) {
	switch rec := r.(type) {
	case *Person:
		rec.Tags = tags
	case *Project:
		rec.Tags = tags
	case *Idea:
		rec.Tags = tags
	case *AdminTask:
		rec.Tags = tags
	case *Decision:
		rec.Tags = tags
	case *HowTo:
		rec.Tags = tags
	case *Snippet:
		rec.Tags = tags
	}
}

// NewRecord returns an empty record for the category
func NewRecord(c Category) (Record, error) {
	switch c {
	case People:
		return &Person{}, nil
	case Projects:
		return &Project{Status: ProjectActive}, nil
	case Ideas:
		return &Idea{}, nil
	case Admin:
		return &AdminTask{Status: AdminPending}, nil
	case Decisions:
		return &Decision{}, nil
	case HowTos:
		return &HowTo{}, nil
	case Snippets:
		return &Snippet{}, nil
	}
	return nil, fmt.Errorf("unknown category: %q", c)
}

// RecordFromFields builds a typed record from the loosely typed field map a
// classifier returns. Missing fields stay empty; unknown statuses fall back to
// the category default.
func RecordFromFields(c Category, fields map[string]any, tags []string) (Record, error) {
	f := fieldMap(fields)
	var r Record

	switch c {
	case People:
		r = &Person{
			Name:      f.str("name"),
			Context:   f.str("context"),
			FollowUps: f.optStr("follow_ups"),
		}
	case Projects:
		status := strings.ToLower(f.str("status"))
		switch status {
		case ProjectActive, ProjectWaiting, ProjectBlocked, ProjectSomeday, ProjectDone:
		default:
			status = ProjectActive
		}
		r = &Project{
			Name:       f.str("name"),
			Status:     status,
			NextAction: f.str("next_action"),
			Notes:      f.str("notes"),
		}
	case Ideas:
		r = &Idea{
			Title:       f.str("title"),
			OneLiner:    f.str("one_liner"),
			Elaboration: f.str("elaboration"),
		}
	case Admin:
		status := strings.ToLower(f.str("status"))
		if status != AdminDone {
			status = AdminPending
		}
		r = &AdminTask{
			Name:    f.str("name"),
			DueDate: f.optStr("due_date"),
			Status:  status,
			Notes:   f.str("notes"),
		}
	case Decisions:
		r = &Decision{
			Title:     f.str("title"),
			Decision:  f.str("decision"),
			Rationale: f.optStr("rationale"),
			Context:   f.optStr("context"),
		}
	case HowTos:
		r = &HowTo{Title: f.str("title"), Content: f.str("content")}
	case Snippets:
		r = &Snippet{Title: f.str("title"), Content: f.str("content")}
	default:
		return nil, fmt.Errorf("unknown category: %q", c)
	}

	if len(tags) == 0 {
		tags = f.strings("tags")
	}
	SetTags(r, tags)
	return r, nil
}

type fieldMap map[string]any

func (f fieldMap) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (f fieldMap) optStr(key string) *string {
	s := f.str(key)
	if s == "" {
		return nil
	}
	return &s
}

func (f fieldMap) strings(key string) []string {
	raw, ok := f[key].([]any)
	if !ok {
		if ss, ok := f[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
