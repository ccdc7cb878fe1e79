package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pbaille/leaknote/internal/domain"
)

// searchText is the text each category is searched on
var searchText = map[domain.Category]string{
	domain.People:    "name || ' ' || context || ' ' || COALESCE(follow_ups, '')",
	domain.Projects:  "name || ' ' || next_action || ' ' || notes",
	domain.Ideas:     "title || ' ' || one_liner || ' ' || elaboration",
	domain.Admin:     "name || ' ' || notes",
	domain.Decisions: "title || ' ' || decision || ' ' || COALESCE(rationale, '') || ' ' || COALESCE(context, '')",
	domain.HowTos:    "title || ' ' || content",
	domain.Snippets:  "title || ' ' || content",
}

// ListProjects returns projects with the given status, or every project
// ordered active, waiting, blocked, someday, done when status is empty
func (s *Store) ListProjects(ctx context.Context, status string, limit int) ([]domain.Entry, error) {
	if status != "" {
		return s.listEntries(ctx, domain.Projects,
			" WHERE status = ? ORDER BY updated_at DESC LIMIT ?", status, limit)
	}
	return s.listEntries(ctx, domain.Projects, `
		ORDER BY CASE status
			WHEN 'active' THEN 1
			WHEN 'waiting' THEN 2
			WHEN 'blocked' THEN 3
			WHEN 'someday' THEN 4
			ELSE 5
		END, updated_at DESC
		LIMIT ?`, limit)
}

// ListIdeas returns the most recent ideas
func (s *Store) ListIdeas(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.listEntries(ctx, domain.Ideas, " ORDER BY created_at DESC LIMIT ?", limit)
}

// ListAdmin returns pending admin tasks, earliest due first. dueOnly skips
// tasks without a due date.
func (s *Store) ListAdmin(ctx context.Context, dueOnly bool, limit int) ([]domain.Entry, error) {
	if dueOnly {
		return s.listEntries(ctx, domain.Admin,
			" WHERE status = 'pending' AND due_date IS NOT NULL ORDER BY due_date ASC LIMIT ?", limit)
	}
	return s.listEntries(ctx, domain.Admin, `
		WHERE status = 'pending'
		ORDER BY CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC
		LIMIT ?`, limit)
}

// SearchRecords finds records in cats whose text contains every word of
// query, case-insensitively, most recently updated first
func (s *Store) SearchRecords(ctx context.Context, query string, cats []domain.Category, limit int) ([]domain.Entry, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil, nil
	}

	var results []domain.Entry
	for _, c := range cats {
		expr, ok := searchText[c]
		if !ok {
			return nil, fmt.Errorf("search records: unknown category %q", c)
		}

		conds := make([]string, len(words))
		args := make([]any, 0, len(words)+1)
		for i, w := range words {
			conds[i] = "(" + expr + ") LIKE ? ESCAPE '\\'"
			args = append(args, "%"+escapeLike(w)+"%")
		}
		args = append(args, limit)

		entries, err := s.listEntries(ctx, c,
			" WHERE "+strings.Join(conds, " AND ")+" ORDER BY updated_at DESC LIMIT ?", args...)
		if err != nil {
			return nil, err
		}
		results = append(results, entries...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) listEntries(ctx context.Context, c domain.Category, tail string, args ...any) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords(c)+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(c, rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	return entries, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

