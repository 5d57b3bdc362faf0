package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Payment is one row of the payment ledger. ProviderTxnID is set once
// when the provider assigns its transaction id and never changes
// afterwards.
type Payment struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID        snowflake.ID      `json:"user_id" gorm:"not null;index"`
	OrderID       snowflake.ID      `json:"order_id" gorm:"not null;index"`
	Amount        int64             `json:"amount" gorm:"not null"`
	Currency      string            `json:"currency" gorm:"type:text;not null"`
	Method        Method            `json:"method" gorm:"type:text;not null"`
	Status        Status            `json:"status" gorm:"type:text;not null"`
	ProviderTxnID *string           `json:"provider_txn_id,omitempty" gorm:"type:text;uniqueIndex"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func (Payment) TableName() string { return "payments" }

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {},
	StatusRefunded:   {},
}

func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusRefunded
}

type Method string

const (
	MethodPayme  Method = "payme"
	MethodClick  Method = "click"
	MethodNasiya Method = "nasiya"
)

func ParseMethod(raw string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(raw))) {
	case MethodPayme:
		return MethodPayme, nil
	case MethodClick:
		return MethodClick, nil
	case MethodNasiya:
		return MethodNasiya, nil
	default:
		return "", ErrProviderNotFound
	}
}

// ProviderTransaction tracks the phase history of a webhook-driven
// provider transaction across its check/create/confirm/reverse cycle.
type ProviderTransaction struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	PaymentID     snowflake.ID      `json:"payment_id" gorm:"not null;index"`
	ProviderTxnID string            `json:"provider_txn_id" gorm:"type:text;not null;uniqueIndex"`
	State         TxState           `json:"state" gorm:"type:text;not null"`
	Amount        int64             `json:"amount" gorm:"not null"`
	CreatedPhase  *time.Time        `json:"created_phase,omitempty"`
	ConfirmPhase  *time.Time        `json:"confirm_phase,omitempty"`
	ReversePhase  *time.Time        `json:"reverse_phase,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProviderTransaction) TableName() string { return "provider_transactions" }

type TxState string

const (
	TxStatePending   TxState = "PENDING"
	TxStateCreated   TxState = "CREATED"
	TxStateConfirmed TxState = "CONFIRMED"
	TxStateReversed  TxState = "REVERSED"
	TxStateFailed    TxState = "FAILED"
)
