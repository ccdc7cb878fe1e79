package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/leaknote/internal/domain"
)

// InsertRecord files r in its category table and returns the new id
func (s *Store) InsertRecord(ctx context.Context, r domain.Record) (string, error) {
	id := newID()
	now := s.now()

	tags, err := encodeStrings(r.RecordTags())
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}

	var (
		query string
		args  []any
	)
	switch rec := r.(type) {
	case *domain.Person:
		query = "INSERT INTO people (id, name, context, follow_ups, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Name, rec.Context, nullString(rec.FollowUps), tags, now, now}
	case *domain.Project:
		status := rec.Status
		if status == "" {
			status = domain.ProjectActive
		}
		query = "INSERT INTO projects (id, name, status, next_action, notes, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Name, status, rec.NextAction, rec.Notes, tags, now, now}
	case *domain.Idea:
		query = "INSERT INTO ideas (id, title, one_liner, elaboration, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Title, rec.OneLiner, rec.Elaboration, tags, now, now}
	case *domain.AdminTask:
		status := rec.Status
		if status == "" {
			status = domain.AdminPending
		}
		query = "INSERT INTO admin (id, name, due_date, status, notes, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Name, nullString(rec.DueDate), status, rec.Notes, tags, now, now}
	case *domain.Decision:
		query = "INSERT INTO decisions (id, title, decision, rationale, context, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Title, rec.Decision, nullString(rec.Rationale), nullString(rec.Context), tags, now, now}
	case *domain.HowTo:
		query = "INSERT INTO howtos (id, title, content, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Title, rec.Content, tags, now, now}
	case *domain.Snippet:
		query = "INSERT INTO snippets (id, title, content, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
		args = []any{id, rec.Title, rec.Content, tags, now, now}
	default:
		return "", fmt.Errorf("insert record: unsupported type %T", r)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert %s: %w", r.Category(), err)
	}
	return id, nil
}

// recordColumns are the category fields read back by scanEntry
var recordColumns = map[domain.Category]string{
	domain.People:    "name, context, follow_ups, tags",
	domain.Projects:  "name, status, next_action, notes, tags",
	domain.Ideas:     "title, one_liner, elaboration, tags",
	domain.Admin:     "name, due_date, status, notes, tags",
	domain.Decisions: "title, decision, rationale, context, tags",
	domain.HowTos:    "title, content, tags",
	domain.Snippets:  "title, content, tags",
}

func selectRecords(c domain.Category) string {
	return "SELECT id, created_at, updated_at, " + recordColumns[c] + " FROM " + string(c)
}

// scanEntry reads a row selected with selectRecords(c)
func scanEntry(c domain.Category, row rowScanner) (*domain.Entry, error) {
	var (
		e    domain.Entry
		tags sql.NullString
		err  error
	)
	head := []any{&e.ID, &e.CreatedAt, &e.UpdatedAt}

	switch c {
	case domain.People:
		var p domain.Person
		var followUps sql.NullString
		err = row.Scan(append(head, &p.Name, &p.Context, &followUps, &tags)...)
		p.FollowUps = ptr(followUps)
		p.Tags = decodeStrings(tags)
		e.Record = &p
	case domain.Projects:
		var p domain.Project
		err = row.Scan(append(head, &p.Name, &p.Status, &p.NextAction, &p.Notes, &tags)...)
		p.Tags = decodeStrings(tags)
		e.Record = &p
	case domain.Ideas:
		var i domain.Idea
		err = row.Scan(append(head, &i.Title, &i.OneLiner, &i.Elaboration, &tags)...)
		i.Tags = decodeStrings(tags)
		e.Record = &i
	case domain.Admin:
		var a domain.AdminTask
		var due sql.NullString
		err = row.Scan(append(head, &a.Name, &due, &a.Status, &a.Notes, &tags)...)
		a.DueDate = ptr(due)
		a.Tags = decodeStrings(tags)
		e.Record = &a
	case domain.Decisions:
		var d domain.Decision
		var rationale, dctx sql.NullString
		err = row.Scan(append(head, &d.Title, &d.Decision, &rationale, &dctx, &tags)...)
		d.Rationale = ptr(rationale)
		d.Context = ptr(dctx)
		d.Tags = decodeStrings(tags)
		e.Record = &d
	case domain.HowTos:
		var h domain.HowTo
		err = row.Scan(append(head, &h.Title, &h.Content, &tags)...)
		h.Tags = decodeStrings(tags)
		e.Record = &h
	case domain.Snippets:
		var sn domain.Snippet
		err = row.Scan(append(head, &sn.Title, &sn.Content, &tags)...)
		sn.Tags = decodeStrings(tags)
		e.Record = &sn
	default:
		return nil, fmt.Errorf("scan record: unknown category %q", c)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c, err)
	}
	return &e, nil
}

// GetRecord loads one record; ErrNotFound when it does not exist
func (s *Store) GetRecord(ctx context.Context, c domain.Category, id string) (domain.Record, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("get record: unknown category %q", c)
	}
	e, err := scanEntry(c, s.db.QueryRowContext(ctx, selectRecords(c)+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return e.Record, nil
}

// DeleteRecord removes a record, reporting whether a row was deleted
func (s *Store) DeleteRecord(ctx context.Context, c domain.Category, id string) (bool, error) {
	if !c.Valid() {
		return false, fmt.Errorf("delete record: unknown category %q", c)
	}
	// Table names come from the closed category set, never from user input
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+string(c)+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", c, err)
	}
	return n == 1, nil
}

// CountRecords returns the number of rows in each category table
func (s *Store) CountRecords(ctx context.Context) (map[domain.Category]int, error) {
	counts := make(map[domain.Category]int, len(domain.Categories))
	for _, c := range domain.Categories {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(c)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", c, err)
		}
		counts[c] = n
	}
	return counts, nil
}

// DeleteDoneAdmin removes completed admin tasks untouched since before cutoff
func (s *Store) DeleteDoneAdmin(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM admin WHERE status = 'done' AND updated_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete done admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete done admin: %w", err)
	}
	return int(n), nil
}
