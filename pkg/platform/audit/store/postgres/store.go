package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "shareledger/pkg/domain"
	audit "shareledger/pkg/platform/audit"
	txcontext "shareledger/pkg/platform/tx"
)

// Store implements audit.Store on the audit_logs table. Rows are never
// updated; the only delete path is DeleteExpired.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `id, timestamp, actor_id, actor_role, action, target_type, target_id, target_email,
	details, before_state, after_state, ip_address, user_agent, session_id, request_id,
	success, error_message, duration_ms, severity, category, risky_action`

// Append inserts one entry.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var actorID *uuid.UUID
	if e.HasActor() {
		u := uuid.UUID(*e.ActorID)
		actorID = &u
	}

	query := `INSERT INTO audit_logs (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err = txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		e.ID,
		e.Timestamp,
		actorID,
		nullString(string(e.ActorRole)),
		string(e.Action),
		nullString(string(e.TargetType)),
		nullString(e.TargetID),
		nullString(e.TargetEmail),
		details,
		nullJSON(e.Before),
		nullJSON(e.After),
		nullString(e.IPAddress),
		nullString(e.UserAgent),
		nullString(e.SessionID),
		nullString(e.RequestID),
		e.Success,
		nullString(e.ErrorMessage),
		e.DurationMs,
		string(e.Severity),
		string(e.Category),
		e.IsRisky(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query applies scope then filter in a single WHERE clause.
func (s *Store) Query(ctx context.Context, scope audit.Scope, filter audit.Filter, page audit.Page) ([]audit.Entry, int, error) {
	page = page.Normalize()
	if scope.Deny {
		return []audit.Entry{}, 0, nil
	}

	w := &whereBuilder{}
	w.scope(scope)
	w.filter(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_logs` + w.sql()
	if err := s.db.QueryRowContext(ctx, countQuery, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	args := append(w.args, page.Limit, page.Offset)
	query := `SELECT ` + entryColumns + ` FROM audit_logs` + w.sql() +
		` ORDER BY timestamp DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Since returns entries at or after since, oldest first.
func (s *Store) Since(ctx context.Context, since time.Time, filter audit.Filter) ([]audit.Entry, error) {
	w := &whereBuilder{}
	w.add("timestamp >= ?", since)
	w.filter(filter)

	query := `SELECT ` + entryColumns + ` FROM audit_logs` + w.sql() + ` ORDER BY timestamp ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query audit window: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// DeleteExpired removes entries past their retention horizon.
func (s *Store) DeleteExpired(ctx context.Context, cutoff, retainedCutoff time.Time) (int, error) {
	query := `DELETE FROM audit_logs
		WHERE timestamp < $1
		  AND (
		    (severity NOT IN ('high', 'critical') AND risky_action = FALSE)
		    OR ($2::timestamptz IS NOT NULL AND timestamp < $2)
		  )`
	var retained any
	if !retainedCutoff.IsZero() {
		retained = retainedCutoff
	}
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, cutoff, retained)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// whereBuilder assembles positional predicates. "?" in a clause is replaced
// by the next $n placeholder.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) scope(s audit.Scope) {
	if s.OnlyActor != nil {
		w.add("actor_id = ?", uuid.UUID(*s.OnlyActor))
	}
	if s.ExcludeActor != nil {
		w.add("(actor_id IS NULL OR actor_id <> ?)", uuid.UUID(*s.ExcludeActor))
	}
	if len(s.ExcludeCategories) > 0 {
		w.add("NOT (category = ANY(?))", pq.Array(toStrings(s.ExcludeCategories)))
	}
}

func (w *whereBuilder) filter(f audit.Filter) {
	if !f.From.IsZero() {
		w.add("timestamp >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("timestamp <= ?", f.To)
	}
	if len(f.Actions) > 0 {
		w.add("action = ANY(?)", pq.Array(toStrings(f.Actions)))
	}
	if len(f.Categories) > 0 {
		w.add("category = ANY(?)", pq.Array(toStrings(f.Categories)))
	}
	if len(f.Severities) > 0 {
		w.add("severity = ANY(?)", pq.Array(toStrings(f.Severities)))
	}
	if f.Success != nil {
		w.add("success = ?", *f.Success)
	}
	if f.Risky != nil {
		w.add("risky_action = ?", *f.Risky)
	}
	if f.TargetUserID != nil {
		w.add("target_type = ? AND target_id = ?", string(audit.TargetUser), f.TargetUserID.String())
	}
	if f.ActorID != nil {
		w.add("actor_id = ?", uuid.UUID(*f.ActorID))
	}
	if f.IPAddress != "" {
		w.add("ip_address = ?", f.IPAddress)
	}
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e                                           audit.Entry
			actorID                                     *uuid.UUID
			actorRole, targetType, targetID, targetMail sql.NullString
			ip, ua, sessionID, requestID, errMsg        sql.NullString
			details, before, after                      []byte
			duration                                    sql.NullInt64
			action, severity, category                  string
			risky                                       bool
		)
		err := rows.Scan(
			&e.ID, &e.Timestamp, &actorID, &actorRole, &action, &targetType, &targetID, &targetMail,
			&details, &before, &after, &ip, &ua, &sessionID, &requestID,
			&e.Success, &errMsg, &duration, &severity, &category, &risky,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if actorID != nil {
			uid := id.UserID(*actorID)
			e.ActorID = &uid
		}
		e.ActorRole = id.Role(actorRole.String)
		e.Action = audit.Action(action)
		e.TargetType = audit.TargetType(targetType.String)
		e.TargetID = targetID.String
		e.TargetEmail = targetMail.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.SessionID = sessionID.String
		e.RequestID = requestID.String
		e.ErrorMessage = errMsg.String
		e.Severity = audit.Severity(severity)
		e.Category = audit.Category(category)
		e.RiskyAction = audit.Bool(risky)
		if duration.Valid {
			d := duration.Int64
			e.DurationMs = &d
		}
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		if len(before) > 0 {
			e.Before = json.RawMessage(before)
		}
		if len(after) > 0 {
			e.After = json.RawMessage(after)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
