package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"collections-engine/internal/accounts"
	"collections-engine/internal/audit"
	"collections-engine/internal/calls"
	"collections-engine/internal/rules"
	"collections-engine/internal/settings"
	"collections-engine/pkg/utils"
)

//go:embed schema.sql
var schemaSQL string

// settingsProvider keys the single integration_settings row.
const settingsProvider = "bland"

// Postgres implements every repository the engine uses over one *sql.DB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (s *Postgres) DB() *sql.DB { return s.db }

// Migrate applies the embedded schema.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

/* ===================== ACCOUNTS ===================== */

func (s *Postgres) ListWorkableAccounts(ctx context.Context, statuses []accounts.Status) ([]accounts.Account, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	const q = `
SELECT a.id, a.account_number, a.debtor_name, a.status,
       p.id, p.number, p.workability, p.last_called, p.last_engaged_at
FROM accounts a
LEFT JOIN phone_numbers p ON p.account_id = a.id
WHERE a.status = ANY($1)
ORDER BY a.id, p.id
`
	rows, err := s.db.QueryContext(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	defer rows.Close()

	var out []accounts.Account
	for rows.Next() {
		var (
			a                         accounts.Account
			phoneID, number, workable sql.NullString
			lastCalled, lastEngaged   sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.DebtorName, &a.Status,
			&phoneID, &number, &workable, &lastCalled, &lastEngaged); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != a.ID {
			out = append(out, a)
		}
		if !phoneID.Valid {
			continue
		}
		cur := &out[len(out)-1]
		cur.Phones = append(cur.Phones, accounts.PhoneNumber{
			ID:            phoneID.String,
			AccountID:     a.ID,
			Number:        number.String,
			Workability:   accounts.Workability(workable.String),
			LastCalled:    timePtr(lastCalled),
			LastEngagedAt: timePtr(lastEngaged),
		})
	}
	return out, rows.Err()
}

/* ===================== CALL LOGS ===================== */

const callLogCols = `id, account_id, COALESCE(phone_id, ''), phone_number, status, duration_seconds,
recording_url, transcript, provider_call_id, voice_used, from_number, engaged, error_message,
call_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallLog(r rowScanner) (calls.CallLog, error) {
	var (
		l   calls.CallLog
		dur sql.NullInt64
	)
	err := r.Scan(&l.ID, &l.AccountID, &l.PhoneID, &l.PhoneNumber, &l.Status, &dur,
		&l.RecordingURL, &l.Transcript, &l.ProviderCallID, &l.VoiceUsed, &l.FromNumber, &l.Engaged, &l.ErrorMessage,
		&l.CallTime, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.CallLog{}, calls.ErrNotFound
		}
		return calls.CallLog{}, err
	}
	if dur.Valid {
		d := int(dur.Int64)
		l.DurationSeconds = &d
	}
	return l, nil
}

// InsertInitiated writes the row and bumps the phone's last_called in one transaction.
func (s *Postgres) InsertInitiated(ctx context.Context, l calls.CallLog) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const ins = `
INSERT INTO call_logs (id, account_id, phone_id, phone_number, status, voice_used, from_number, call_time, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
`
		if _, err := tx.ExecContext(ctx, ins, l.ID, l.AccountID, l.PhoneID, l.PhoneNumber, string(l.Status),
			l.VoiceUsed, l.FromNumber, l.CallTime, l.CreatedAt, l.UpdatedAt); err != nil {
			return fmt.Errorf("store: insert call log: %w", err)
		}
		if l.PhoneID == "" {
			return nil
		}
		const touch = `
UPDATE phone_numbers
SET last_called = GREATEST(COALESCE(last_called, $2), $2)
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, touch, l.PhoneID, l.CallTime); err != nil {
			return fmt.Errorf("store: touch phone: %w", err)
		}
		return nil
	})
}

// patchArgs returns the SET values for a Patch; nil leaves the column as is.
func patchArgs(p calls.Patch) []any {
	var status, pid, rec, tr, msg, engaged, dur any
	if p.Status != nil {
		status = string(*p.Status)
	}
	if p.ProviderCallID != nil {
		pid = *p.ProviderCallID
	}
	if p.RecordingURL != nil {
		rec = *p.RecordingURL
	}
	if p.Transcript != nil {
		tr = *p.Transcript
	}
	if p.ErrorMessage != nil {
		msg = *p.ErrorMessage
	}
	if p.Engaged != nil {
		engaged = *p.Engaged
	}
	if p.DurationSeconds != nil {
		dur = int64(*p.DurationSeconds)
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return []any{status, pid, dur, rec, tr, engaged, msg, updated}
}

const patchSet = `
SET status           = COALESCE($2::text, status),
    provider_call_id = COALESCE($3::text, provider_call_id),
    duration_seconds = COALESCE($4::integer, duration_seconds),
    recording_url    = COALESCE($5::text, recording_url),
    transcript       = COALESCE($6::text, transcript),
    engaged          = COALESCE($7::boolean, engaged),
    error_message    = COALESCE($8::text, error_message),
    updated_at       = $9
`

func (s *Postgres) UpdateCallLog(ctx context.Context, id string, p calls.Patch) error {
	q := `UPDATE call_logs` + patchSet + `WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, append([]any{id}, patchArgs(p)...)...)
	if err != nil {
		return fmt.Errorf("store: update call log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return calls.ErrNotFound
	}
	return nil
}

// TransitionCallLog is a compare-and-set on status.
func (s *Postgres) TransitionCallLog(ctx context.Context, id string, from calls.Status, p calls.Patch) (calls.CallLog, bool, error) {
	q := `UPDATE call_logs` + patchSet + `WHERE id = $1 AND status = $10 RETURNING ` + callLogCols
	args := append([]any{id}, patchArgs(p)...)
	args = append(args, string(from))

	l, err := scanCallLog(s.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, calls.ErrNotFound) {
		return calls.CallLog{}, false, fmt.Errorf("store: transition call log: %w", err)
	}
	cur, err := s.GetCallLog(ctx, id)
	if err != nil {
		return calls.CallLog{}, false, err
	}
	return cur, false, nil
}

func (s *Postgres) GetCallLog(ctx context.Context, id string) (calls.CallLog, error) {
	q := `SELECT ` + callLogCols + ` FROM call_logs WHERE id = $1`
	return scanCallLog(s.db.QueryRowContext(ctx, q, id))
}

func (s *Postgres) GetCallLogByProviderID(ctx context.Context, providerCallID string) (calls.CallLog, error) {
	if providerCallID == "" {
		return calls.CallLog{}, calls.ErrNotFound
	}
	q := `SELECT ` + callLogCols + ` FROM call_logs WHERE provider_call_id = $1`
	return scanCallLog(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *Postgres) TouchPhone(ctx context.Context, phoneID string, lastCalled time.Time, engagedAt *time.Time) error {
	const q = `
UPDATE phone_numbers
SET last_called     = GREATEST(COALESCE(last_called, $2), $2),
    last_engaged_at = CASE WHEN $3::timestamptz IS NULL THEN last_engaged_at
                           ELSE GREATEST(COALESCE(last_engaged_at, $3), $3) END
WHERE id = $1
`
	var eng any
	if engagedAt != nil {
		eng = *engagedAt
	}
	if _, err := s.db.ExecContext(ctx, q, phoneID, lastCalled, eng); err != nil {
		return fmt.Errorf("store: touch phone: %w", err)
	}
	return nil
}

// ListCallLogs returns logs newest first.
func (s *Postgres) ListCallLogs(ctx context.Context, f calls.Filter) ([]calls.CallLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if !f.From.IsZero() {
		add("call_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("call_time < $%d", f.To)
	}

	q := `SELECT ` + callLogCols + ` FROM call_logs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	q += fmt.Sprintf(` ORDER BY call_time DESC, id LIMIT $%d`, len(args))

	return s.queryCallLogs(ctx, q, args...)
}

func (s *Postgres) CallLogsBetween(ctx context.Context, from, to time.Time) ([]calls.CallLog, error) {
	q := `SELECT ` + callLogCols + ` FROM call_logs WHERE call_time >= $1 AND call_time < $2`
	return s.queryCallLogs(ctx, q, from, to)
}

func (s *Postgres) queryCallLogs(ctx context.Context, q string, args ...any) ([]calls.CallLog, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query call logs: %w", err)
	}
	defer rows.Close()

	out := make([]calls.CallLog, 0)
	for rows.Next() {
		l, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

/* ===================== SETTINGS ===================== */

func (s *Postgres) GetSettings(ctx context.Context) (settings.Settings, bool, error) {
	const q = `
SELECT api_key, pathway_id, endpoint, from_number, max_duration_seconds, record, model, updated_at
FROM integration_settings
WHERE provider = $1
`
	var st settings.Settings
	err := s.db.QueryRowContext(ctx, q, settingsProvider).Scan(
		&st.APIKey, &st.PathwayID, &st.Endpoint, &st.FromNumber,
		&st.MaxDurationSeconds, &st.Record, &st.Model, &st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, false, nil
	}
	if err != nil {
		return settings.Settings{}, false, fmt.Errorf("store: get settings: %w", err)
	}
	return st, true, nil
}

func (s *Postgres) PutSettings(ctx context.Context, st settings.Settings) error {
	const q = `
INSERT INTO integration_settings (provider, api_key, pathway_id, endpoint, from_number, max_duration_seconds, record, model, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (provider) DO UPDATE SET
    api_key = excluded.api_key,
    pathway_id = excluded.pathway_id,
    endpoint = excluded.endpoint,
    from_number = excluded.from_number,
    max_duration_seconds = excluded.max_duration_seconds,
    record = excluded.record,
    model = excluded.model,
    updated_at = excluded.updated_at
`
	if _, err := s.db.ExecContext(ctx, q, settingsProvider, st.APIKey, st.PathwayID, st.Endpoint, st.FromNumber,
		st.MaxDurationSeconds, st.Record, st.Model, st.UpdatedAt); err != nil {
		return fmt.Errorf("store: put settings: %w", err)
	}
	return nil
}

/* ===================== RULES ===================== */

func (s *Postgres) InsertRule(ctx context.Context, r rules.Rule) error {
	const q = `INSERT INTO call_rules (id, rule_text, is_implemented, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.RuleText, r.IsImplemented, r.CreatedAt); err != nil {
		return fmt.Errorf("store: insert rule: %w", err)
	}
	return nil
}

func (s *Postgres) ListRules(ctx context.Context) ([]rules.Rule, error) {
	const q = `SELECT id, rule_text, is_implemented, created_at FROM call_rules ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	defer rows.Close()

	out := make([]rules.Rule, 0)
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(&r.ID, &r.RuleText, &r.IsImplemented, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM call_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return rules.ErrNotFound
	}
	return nil
}

func (s *Postgres) DeletePendingRules(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM call_rules WHERE NOT is_implemented`)
	if err != nil {
		return 0, fmt.Errorf("store: clear pending rules: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

/* ===================== AUDIT ===================== */

func (s *Postgres) Append(ctx context.Context, e audit.Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, target_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	if _, err := s.db.ExecContext(ctx, q, e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.TargetID, e.Message, e.Metadata, e.CreatedAt); err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

// ListEvents returns audit events newest first.
func (s *Postgres) ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.ActorUserID != "" {
		add("actor_user_id = $%d", f.ActorUserID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	q := `SELECT id, type, actor_user_id, actor_role, ip_address, target_id, message, metadata, created_at FROM audit_events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	q += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list audit: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e   audit.Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.TargetID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit: %w", err)
		}
		e.Type = audit.EventType(typ)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
