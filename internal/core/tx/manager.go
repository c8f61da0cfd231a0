// Package tx defines the transaction boundary shared by the counter stores.
// Both the pgx store and the database/sql store implement Manager so that
// services and admin tooling stay independent of the driver.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
//
// Nested calls reuse the existing transaction from context.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
