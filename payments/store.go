package payments

import (
	"context"
	"time"
)

// Store persists the payments of each wallet.
type Store interface {
	// LoadPayments returns a wallet's payments in creation order.
	LoadPayments(ctx context.Context, wallet string) ([]Payment, error)

	// SavePayment inserts or replaces one payment.
	SavePayment(ctx context.Context, wallet string, p Payment) error

	// DeletePayments removes payments by ID. Unknown IDs are ignored.
	DeletePayments(ctx context.Context, wallet string, ids []string) error

	// ListWallets returns every wallet with stored payments.
	ListWallets(ctx context.Context) ([]string, error)
}

// Settler pays newly due occurrences of auto-pay payments on the host's
// behalf. Returning an error leaves the occurrences overdue.
type Settler interface {
	Settle(ctx context.Context, wallet string, p Payment, due []time.Time) error
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(ctx context.Context, wallet string, p Payment, due []time.Time) error

func (f SettlerFunc) Settle(ctx context.Context, wallet string, p Payment, due []time.Time) error {
	return f(ctx, wallet, p, due)
}
