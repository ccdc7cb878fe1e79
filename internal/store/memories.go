package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/embedding"
)

// SaveMemory stores the enrichment row for a filed record
func (s *Store) SaveMemory(ctx context.Context, m *domain.Memory) (string, error) {
	id := newID()

	var vec sql.NullString
	if len(m.Embedding) > 0 {
		b, err := json.Marshal(m.Embedding)
		if err != nil {
			return "", fmt.Errorf("marshal embedding: %w", err)
		}
		vec = sql.NullString{String: string(b), Valid: true}
	}
	related, err := encodeStrings(m.Related)
	if err != nil {
		return "", fmt.Errorf("encode related: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, record_id, category, text, link_text, embedding, model, related, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, m.RecordID, string(m.Category), m.Text, m.LinkText, vec, m.Model, related, s.now())
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

// GetMemoryByRecord loads the enrichment row for a record
func (s *Store) GetMemoryByRecord(ctx context.Context, recordID string) (*domain.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, category, text, link_text, embedding, model, related, created_at
		FROM memories WHERE record_id = ? ORDER BY created_at DESC LIMIT 1
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get memory: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanMemory(rows)
}

// FindSimilar ranks stored memories by cosine similarity to vector, skipping
// the memories of excludeRecordID
func (s *Store) FindSimilar(ctx context.Context, vector []float64, limit int, excludeRecordID string) ([]domain.SimilarMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, category, text, link_text, embedding, model, related, created_at
		FROM memories WHERE embedding IS NOT NULL AND record_id != ?
	`, excludeRecordID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []domain.SimilarMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		score := embedding.CosineSimilarity(vector, m.Embedding)
		m.Embedding = nil
		results = append(results, domain.SimilarMemory{Memory: *m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func scanMemory(row rowScanner) (*domain.Memory, error) {
	var (
		m        domain.Memory
		category string
		vec      sql.NullString
		related  sql.NullString
	)
	if err := row.Scan(&m.ID, &m.RecordID, &category, &m.Text, &m.LinkText, &vec, &m.Model, &related, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.Category = domain.Category(category)
	m.Related = decodeStrings(related)
	if vec.Valid && vec.String != "" {
		if err := json.Unmarshal([]byte(vec.String), &m.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
	}
	return &m, nil
}
