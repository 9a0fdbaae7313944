package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthmate/internal/models"
)

// DietaryRestrictions returns the user's restrictions, oldest first.
func (s *Service) DietaryRestrictions(ctx context.Context, userID int64) ([]string, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT restriction FROM dietary_restrictions WHERE user_id = ? ORDER BY id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query restrictions: %w", err)
	}
	defer rows.Close()

	var restrictions []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan restriction: %w", err)
		}
		restrictions = append(restrictions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restrictions: %w", err)
	}
	return restrictions, nil
}

// AddDietaryRestriction records a restriction for the user. Re-adding an
// existing restriction is a no-op.
func (s *Service) AddDietaryRestriction(ctx context.Context, userID int64, restriction string) error {
	restriction = strings.ToLower(strings.TrimSpace(restriction))
	if userID <= 0 || restriction == "" {
		return errors.New("invalid restriction")
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM dietary_restrictions WHERE user_id = ? AND restriction = ?`,
		userID, restriction,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check restriction: %w", err)
	}
	if exists > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dietary_restrictions (user_id, restriction, created_at) VALUES (?, ?, ?)`,
		userID, restriction, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert restriction: %w", err)
	}
	return nil
}

// RemoveDietaryRestriction deletes a restriction; missing rows are fine.
func (s *Service) RemoveDietaryRestriction(ctx context.Context, userID int64, restriction string) error {
	restriction = strings.ToLower(strings.TrimSpace(restriction))
	if userID <= 0 || restriction == "" {
		return errors.New("invalid restriction")
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dietary_restrictions WHERE user_id = ? AND restriction = ?`, userID, restriction,
	)
	if err != nil {
		return fmt.Errorf("delete restriction: %w", err)
	}
	return nil
}

// AddDomainRecord appends one per-feature history entry. The payload is
// stored as JSON.
func (s *Service) AddDomainRecord(ctx context.Context, userID int64, feature string, payload map[string]any) (int64, error) {
	if userID <= 0 || strings.TrimSpace(feature) == "" {
		return 0, errors.New("invalid domain record")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_history (user_id, feature, payload, created_at) VALUES (?, ?, ?, ?)`,
		userID, feature, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert domain record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("domain record id: %w", err)
	}
	return id, nil
}

// RecentDomainHistory returns the user's newest history entries for a
// feature, newest first, up to limit. Entries whose payload no longer
// decodes are skipped.
func (s *Service) RecentDomainHistory(ctx context.Context, userID int64, feature string, limit int) ([]models.DomainRecord, error) {
	if userID <= 0 || strings.TrimSpace(feature) == "" {
		return nil, errors.New("invalid domain history query")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, feature, payload, created_at FROM feature_history
		 WHERE user_id = ? AND feature = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, feature, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query domain history: %w", err)
	}
	defer rows.Close()

	var records []models.DomainRecord
	for rows.Next() {
		var rec models.DomainRecord
		var raw string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Feature, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan domain record: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Payload); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain history: %w", err)
	}
	return records, nil
}
