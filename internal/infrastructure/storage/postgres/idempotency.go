package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
)

const issueKeyTable = "counter_issue_keys"

// IdempotencyStore keeps the numbers issued under client idempotency keys.
// Records are written in the counter transaction, so a key and its increment
// commit or roll back together.
type IdempotencyStore struct {
	txManager   *TxManager
	lockTimeout time.Duration
	txTimeout   time.Duration
	ttl         time.Duration
	now         func() time.Time
}

var _ counter.IssueLog = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, lockTimeout, txTimeout, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager:   txManager,
		lockTimeout: lockTimeout,
		txTimeout:   txTimeout,
		ttl:         ttl,
		now:         time.Now,
	}
}

// InTx runs fn in a serializable counter transaction.
func (s *IdempotencyStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.txManager.RunInTransactionWithOptions(ctx, CounterTxOptions(s.lockTimeout, s.txTimeout), fn)
	if err != nil {
		return ClassifyError(issueKeyTable, "*", "idempotent issue", err)
	}
	return nil
}

// Find returns the live record for key.
func (s *IdempotencyStore) Find(ctx context.Context, key string) (counter.IssueRecord, bool, error) {
	var rec counter.IssueRecord
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT idempotency_key, sequence_code, request_hash, issued_value, issued_at
		FROM counter_issue_keys
		WHERE idempotency_key = $1 AND expires_at_unix > $2
	`, key, s.now().Unix()).Scan(&rec.Key, &rec.SequenceCode, &rec.RequestHash, &rec.Value, &rec.IssuedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return counter.IssueRecord{}, false, nil
	}
	if err != nil {
		return counter.IssueRecord{}, false, ClassifyError(issueKeyTable, key, "issue key read", err)
	}
	return rec, true, nil
}

// Record stores rec, replacing an expired record for the same key. A live
// record makes it fail with CONCURRENT_MODIFICATION so the caller retries
// and replays it.
func (s *IdempotencyStore) Record(ctx context.Context, rec counter.IssueRecord) error {
	now := s.now()
	issuedAt := rec.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO counter_issue_keys (idempotency_key, sequence_code, request_hash, issued_value, issued_at, expires_at_unix)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			sequence_code = EXCLUDED.sequence_code,
			request_hash = EXCLUDED.request_hash,
			issued_value = EXCLUDED.issued_value,
			issued_at = EXCLUDED.issued_at,
			expires_at_unix = EXCLUDED.expires_at_unix
		WHERE counter_issue_keys.expires_at_unix <= $7
	`, rec.Key, rec.SequenceCode, rec.RequestHash, rec.Value, issuedAt, now.Add(s.ttl).Unix(), now.Unix())
	if err != nil {
		return ClassifyError(issueKeyTable, rec.Key, "issue key write", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(issueKeyTable, rec.Key)
	}
	return nil
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM counter_issue_keys WHERE expires_at_unix <= $1
	`, s.now().Unix())
	if err != nil {
		return 0, ClassifyError(issueKeyTable, "*", "issue key cleanup", err)
	}
	return result.RowsAffected(), nil
}
