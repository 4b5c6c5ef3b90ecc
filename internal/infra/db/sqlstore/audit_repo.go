package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
)

func (s *AuditRepository) SaveEvent(ctx context.Context, e *audit.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db, `
INSERT INTO audit_events (id, organization_id, action, resource_type, resource_id, message, metadata, created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, nullString(e.OrganizationID), string(e.Action), e.ResourceType, e.ResourceID, e.Message,
		encodeJSON(e.Metadata), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events of an organization first.
func (s *AuditRepository) ListEvents(ctx context.Context, organizationID string, limit int) ([]*audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `
SELECT id, organization_id, action, resource_type, resource_id, message, metadata, created_at
FROM audit_events WHERE organization_id=? ORDER BY created_at DESC LIMIT ?`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		var (
			e                              audit.Event
			action                         string
			org, rtype, rid, message, meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &org, &action, &rtype, &rid, &message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OrganizationID, e.Action = org.String, audit.Action(action)
		e.ResourceType, e.ResourceID, e.Message = rtype.String, rid.String, message.String
		e.CreatedAt = e.CreatedAt.UTC()
		if err := decodeJSON(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("audit event %s: %w", e.ID, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
