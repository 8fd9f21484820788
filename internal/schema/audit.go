package schema

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stonescriptdb/gateway/pkg/logger"
)

const adminAuditTable = "_stonescriptdb_gateway_admin_audit_log"

// Execer is the subset of pgxpool.Pool the audit logger needs to write and
// provision its table.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AuditLogger records admin-endpoint activity to a dedicated tracking
// table. A logging failure never fails the request it is auditing.
type AuditLogger struct {
	log *logger.Logger
}

// NewAuditLogger builds an AuditLogger that reports failures through log.
func NewAuditLogger(log *logger.Logger) *AuditLogger {
	return &AuditLogger{log: log}
}

// EnsureAuditTable creates the audit table and its indexes if they do not
// already exist. Safe to call on every startup.
func (a *AuditLogger) EnsureAuditTable(ctx context.Context, pool Execer) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+adminAuditTable+` (
			id SERIAL PRIMARY KEY,
			action VARCHAR(255) NOT NULL,
			source_ip INET NOT NULL,
			request_path VARCHAR(255) NOT NULL,
			request_body TEXT,
			response_status INTEGER NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_admin_audit_created_at
		ON `+adminAuditTable+` (created_at DESC)
	`); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_admin_audit_source_ip
		ON `+adminAuditTable+` (source_ip)
	`); err != nil {
		return err
	}

	return nil
}

// LogAdminAction records one admin-endpoint invocation. requestBody may be
// empty; it is written to the table as-is. A write failure is logged as a
// warning and swallowed so the request it audits never fails because the
// audit trail could not be written.
func (a *AuditLogger) LogAdminAction(ctx context.Context, pool Execer, action string, sourceIP net.IP, requestPath, requestBody string, responseStatus int) {
	var body *string
	if requestBody != "" {
		body = &requestBody
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO `+adminAuditTable+`
		(action, source_ip, request_path, request_body, response_status)
		VALUES ($1, $2, $3, $4, $5)
	`, action, sourceIP.String(), requestPath, body, responseStatus)
	if err != nil && a.log != nil {
		a.log.Warnf("failed to write admin audit log: %v (action=%s ip=%s)", err, action, sourceIP)
	}
}

// AuditEntry is one row read back from the audit table.
type AuditEntry struct {
	ID             int
	Action         string
	SourceIP       string
	RequestPath    string
	RequestBody    string
	ResponseStatus int
}

// RecentActions returns the most recent audit entries, newest first.
func (a *AuditLogger) RecentActions(ctx context.Context, pool Execer, limit int) ([]AuditEntry, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, action, source_ip::text, request_path, COALESCE(request_body, ''), response_status
		FROM `+adminAuditTable+`
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.SourceIP, &e.RequestPath, &e.RequestBody, &e.ResponseStatus); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
