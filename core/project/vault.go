package project

import "context"

// TokenVault custodies pooled project funds. Pull moves external funds
// into custody, Push pays custody funds out.
type TokenVault interface {
	Pull(ctx context.Context, token, from Address, amount int64) error
	Push(ctx context.Context, token, to Address, amount int64) error
	Balance(ctx context.Context, token Address) (int64, error)
}
