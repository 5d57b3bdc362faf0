package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// CreatePayment writes the pending ledger row and then asks the
	// provider for a redirect URL. A provider failure leaves the
	// pending row in place for later reconciliation.
	CreatePayment(ctx context.Context, userID snowflake.ID, req CreateInput) (*PaymentIntent, error)

	// CreatePending writes only the ledger row, on the caller's tx.
	// The checkout saga uses it so the payment commits atomically with
	// the order, then calls Initiate after the commit.
	CreatePending(ctx context.Context, tx *gorm.DB, draft PendingDraft) (*Payment, error)

	// Initiate performs the post-commit provider call for an existing
	// pending payment and stores the provider transaction id.
	Initiate(ctx context.Context, paymentID snowflake.ID, opts InitiateOptions) (*PaymentIntent, error)

	// HandleCallback runs the adapter's verify/parse and applies the
	// resulting ledger transition at most once. Replays return the
	// same provider envelope without repeating side effects.
	HandleCallback(ctx context.Context, method Method, cb Callback) (*CallbackResult, error)

	// CheckStatus polls the provider and folds a definitive answer
	// into the ledger through the same guarded transition.
	CheckStatus(ctx context.Context, paymentID snowflake.ID) (Status, error)

	Refund(ctx context.Context, userID, paymentID snowflake.ID) (*Payment, error)
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	ListUserPayments(ctx context.Context, userID snowflake.ID) ([]Payment, error)
}

type CreateInput struct {
	OrderID     snowflake.ID `json:"order_id"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
	Method      string       `json:"method"`
	Description string       `json:"description"`
	ReturnURL   string       `json:"return_url"`
	Phone       string       `json:"phone"`
}

type PendingDraft struct {
	UserID   snowflake.ID
	OrderID  snowflake.ID
	Amount   int64
	Currency string
	Method   Method
}

type InitiateOptions struct {
	Description string
	ReturnURL   string
	Phone       string
}

type PaymentIntent struct {
	Payment    *Payment `json:"payment"`
	PaymentURL string   `json:"payment_url,omitempty"`
}
