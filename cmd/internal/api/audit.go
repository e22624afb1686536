package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one security event.
type AuditEntry struct {
	Action    string
	UserID    string
	SessionID string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records security events. Implementations must not block the
// request on failure; errors are logged.
type Auditor interface {
	Record(ctx context.Context, e AuditEntry)
}

// PostgresAuditor writes to pdfgate.audit_log.
type PostgresAuditor struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresAuditor(pool *pgxpool.Pool, log *slog.Logger) *PostgresAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{pool: pool, log: log}
}

func (a *PostgresAuditor) Record(ctx context.Context, e AuditEntry) {
	if a == nil || a.pool == nil {
		return
	}
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return
	}

	var ipVal any
	if e.IP != nil {
		ipVal = e.IP.String()
	}

	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO pdfgate.audit_log (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4, $5, $6::jsonb)
	`, trimOrNil(e.UserID), trimOrNil(e.SessionID), action, ipVal, trimOrNil(e.UserAgent), metaVal)
	if err != nil {
		a.log.Error("audit.insert.fail", "err", err, "action", action)
	}
}

// LogAuditor emits audit events as structured log lines. It is used when no
// database is configured.
type LogAuditor struct {
	log *slog.Logger
}

func NewLogAuditor(log *slog.Logger) *LogAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &LogAuditor{log: log}
}

func (a *LogAuditor) Record(ctx context.Context, e AuditEntry) {
	if a == nil {
		return
	}
	attrs := []any{"action", e.Action}
	if e.UserID != "" {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.SessionID != "" {
		attrs = append(attrs, "session_id", e.SessionID)
	}
	if e.IP != nil {
		attrs = append(attrs, "ip", e.IP.String())
	}
	if len(e.Meta) > 0 {
		attrs = append(attrs, "meta", e.Meta)
	}
	a.log.InfoContext(ctx, "audit", attrs...)
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

func (h *Handler) audit(r *http.Request, action, userID, sessionID string, meta map[string]any) {
	h.auditor.Record(r.Context(), AuditEntry{
		Action:    action,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		Meta:      meta,
	})
}
