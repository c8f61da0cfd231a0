package counter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"erpcounter/internal/core/apperror"
	corecounter "erpcounter/internal/core/counter"
	"erpcounter/pkg/logger"
)

// WithIssueLog enables idempotent issuing through GetNextCounterIdempotent.
func WithIssueLog(l corecounter.IssueLog) Option {
	return func(s *Service) {
		s.issues = l
	}
}

// Fingerprint identifies the request an idempotency key was first used with.
// A zero reference date is kept as-is, so a replay on another day still matches.
func (r Request) Fingerprint() string {
	date := ""
	if !r.ReferenceDate.IsZero() {
		date = r.ReferenceDate.UTC().Format(time.DateOnly)
	}
	h := sha256.Sum256([]byte(strings.Join([]string{r.SequenceCode, r.Site, date, r.Complement}, "\x1f")))
	return hex.EncodeToString(h[:])
}

// GetNextCounterIdempotent issues a number once per idempotency key. A repeated
// key returns the number issued the first time (replayed=true) without
// touching the counter; the same key with a different request fails with
// IDEMPOTENCY_CONFLICT. Without a key or an issue log it behaves like
// GetNextCounter.
func (s *Service) GetNextCounterIdempotent(ctx context.Context, key string, req Request) (value string, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" || s.issues == nil {
		value, err = s.GetNextCounter(ctx, req)
		return value, false, err
	}

	hash := req.Fingerprint()
	err = s.issues.InTx(ctx, func(ctx context.Context) error {
		rec, found, err := s.issues.Find(ctx, key)
		if err != nil {
			return err
		}
		if found {
			if rec.SequenceCode != req.SequenceCode || rec.RequestHash != hash {
				return apperror.NewIdempotencyMismatch(key).
					WithDetail("sequence_code", rec.SequenceCode)
			}
			value, replayed = rec.Value, true
			return nil
		}

		v, err := s.GetNextCounter(ctx, req)
		if err != nil {
			return err
		}
		value = v
		return s.issues.Record(ctx, corecounter.IssueRecord{
			Key:          key,
			SequenceCode: req.SequenceCode,
			RequestHash:  hash,
			Value:        v,
			IssuedAt:     s.now(),
		})
	})
	if err != nil {
		return "", false, err
	}

	if replayed {
		logger.FromContext(ctx).Debugw("replayed idempotent counter request",
			"sequence_code", req.SequenceCode,
			"idempotency_key", key,
		)
	}
	return value, replayed, nil
}
