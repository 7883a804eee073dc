package domain

import "context"

// TxState is the on-chain status of a submitted transaction.
type TxState string

const (
	TxPending   TxState = "PENDING"
	TxConfirmed TxState = "CONFIRMED"
	TxFailed    TxState = "FAILED"
)

// EscrowClient submits and inspects escrow transactions for on-chain
// contests. Amounts are fixed-point ticks; the implementation scales them to
// the token's on-chain precision.
type EscrowClient interface {
	// Deposit calls deposit(contestID) on the escrow contract with the entry
	// fee as transaction value, waits for inclusion, and returns the tx hash.
	Deposit(ctx context.Context, contractAddr string, contestID int64, amount Ticks) (string, error)

	// TxState reports the chain status of a previously submitted transaction.
	TxState(ctx context.Context, txHash string) (TxState, error)

	// Transfer sends amount from the treasury account to a wallet and returns
	// the tx hash. Used for payouts.
	Transfer(ctx context.Context, toAddr string, amount Ticks) (string, error)
}
