// Copyright 2025 Certen Protocol
//
// AuditLogRepository for structured audit trail entries.

package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Severity is the audit_log severity enum (§6).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AuditLogRepository appends audit_log rows. audit_log is append-only;
// there is no update or delete method by design.
type AuditLogRepository struct {
	client *Client
}

// NewAuditLogRepository wires an AuditLogRepository.
func NewAuditLogRepository(client *Client) *AuditLogRepository {
	return &AuditLogRepository{client: client}
}

// Append writes one audit_log row.
func (r *AuditLogRepository) Append(ctx context.Context, eventType string, severity Severity, source, message string, metadata map[string]any) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("store: marshal audit metadata: %w", err)
	}
	_, err = r.client.db.ExecContext(ctx,
		`INSERT INTO audit_log (event_type, severity, source, message, metadata) VALUES ($1, $2, $3, $4, $5)`,
		eventType, severity, source, message, encoded)
	if err != nil {
		return fmt.Errorf("store: append audit log: %w", err)
	}
	return nil
}
