package domain

import "errors"

var (
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidConfig        = errors.New("invalid_adapter_config")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrUnauthorizedCallback = errors.New("unauthorized_callback")
	ErrProviderNotFound     = errors.New("provider_not_found")
	ErrProviderUnavailable  = errors.New("provider_unavailable")
	ErrProviderRejected     = errors.New("provider_rejected")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrTransactionNotFound  = errors.New("transaction_not_found")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrRefundNotAllowed     = errors.New("refund_not_allowed")
	ErrAlreadyPaid          = errors.New("order_already_paid")
	ErrOrderHasTransaction  = errors.New("order_has_active_transaction")
	ErrNotOwner             = errors.New("payment_not_owned")
)
