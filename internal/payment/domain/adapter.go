package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// Adapter is one payment provider integration. Implementations must
// verify callback authenticity before trusting any field of the body.
type Adapter interface {
	Method() Method

	// CreatePayment registers the payment with the provider (or signs
	// a redirect URL locally for providers without an outbound API)
	// and returns where to send the customer.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)

	// HandleCallback verifies and interprets one provider callback.
	// Authenticity failures return ErrInvalidSignature or
	// ErrUnauthorizedCallback; business rejections return a result
	// whose Response already carries the provider's error envelope.
	HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error)

	// CheckStatus polls the provider for a transaction's state.
	// Transient transport failures surface ErrProviderUnavailable.
	CheckStatus(ctx context.Context, providerTxnID string) (Status, error)

	Refund(ctx context.Context, providerTxnID string, amount int64) (*RefundResult, error)
}

type CreatePaymentRequest struct {
	PaymentID   snowflake.ID
	OrderID     snowflake.ID
	Amount      int64
	Description string
	ReturnURL   string
	Phone       string
}

type CreatePaymentResponse struct {
	TransactionID string
	PaymentURL    string
}

// Callback is the raw inbound provider request. Phase is set for
// providers that multiplex several operations over one endpoint path
// segment (nasiya) or distinct routes (click prepare/complete).
type Callback struct {
	Body   []byte
	Header http.Header
	Phase  string
}

// CallbackResult tells the orchestrator what the callback means.
// Status is empty when the callback requires no ledger transition
// (pure queries). Response is the envelope to serialize back to the
// provider regardless of outcome.
type CallbackResult struct {
	Status        Status
	TransactionID string
	OrderID       snowflake.ID
	Response      any
}

type RefundResult struct {
	RefundID string
	Status   Status
}

// LedgerReader is the narrow read surface adapters use to answer
// provider queries about payments. All writes stay with the
// orchestrator.
type LedgerReader interface {
	FindByProviderTxnID(ctx context.Context, providerTxnID string) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID snowflake.ID) (*Payment, error)
}
