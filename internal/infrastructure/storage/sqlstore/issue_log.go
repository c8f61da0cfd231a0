package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
)

const issueKeyTable = "counter_issue_keys"

// IssueLog stores idempotency keys next to the counters, in the same
// transaction as the increment.
type IssueLog struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

var _ counter.IssueLog = (*IssueLog)(nil)

// NewIssueLog creates an issue log on store; records live for ttl.
func NewIssueLog(store *Store, ttl time.Duration) *IssueLog {
	return &IssueLog{store: store, ttl: ttl, now: time.Now}
}

type issueRow struct {
	Key          string    `db:"idempotency_key"`
	SequenceCode string    `db:"sequence_code"`
	RequestHash  string    `db:"request_hash"`
	Value        string    `db:"issued_value"`
	IssuedAt     time.Time `db:"issued_at"`
}

// InTx implements counter.IssueLog with the counter transaction options.
func (l *IssueLog) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := l.store.runInTx(ctx, l.store.counterTx(), fn)
	return classifyError(issueKeyTable, "*", "idempotent issue", err)
}

// Find implements counter.IssueLog. Expired records are not returned.
func (l *IssueLog) Find(ctx context.Context, key string) (counter.IssueRecord, bool, error) {
	var row issueRow
	err := l.store.queries.Get(ctx, l.store.ext(ctx), "get-issue-key", &row, key, l.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return counter.IssueRecord{}, false, nil
	}
	if err != nil {
		return counter.IssueRecord{}, false, classifyError(issueKeyTable, key, "issue key read", err)
	}
	return counter.IssueRecord{
		Key:          row.Key,
		SequenceCode: row.SequenceCode,
		RequestHash:  row.RequestHash,
		Value:        row.Value,
		IssuedAt:     row.IssuedAt,
	}, true, nil
}

// Record implements counter.IssueLog.
func (l *IssueLog) Record(ctx context.Context, rec counter.IssueRecord) error {
	now := l.now()
	issuedAt := rec.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}

	res, err := l.store.queries.Exec(ctx, l.store.ext(ctx), "record-issue-key",
		rec.Key, rec.SequenceCode, rec.RequestHash, rec.Value, issuedAt.UTC(),
		now.Add(l.ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return classifyError(issueKeyTable, rec.Key, "issue key write", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NewConcurrentModification(issueKeyTable, rec.Key)
	}
	return nil
}

// CleanupExpired removes expired records.
func (l *IssueLog) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := l.store.queries.Exec(ctx, l.store.db, "delete-expired-issue-keys", l.now().Unix())
	if err != nil {
		return 0, classifyError(issueKeyTable, "*", "issue key cleanup", err)
	}
	return res.RowsAffected()
}
