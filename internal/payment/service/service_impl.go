package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/clock"
	"github.com/shafran/commerce/internal/notify"
	"github.com/shafran/commerce/internal/observability/metrics"
	orderdomain "github.com/shafran/commerce/internal/order/domain"
	"github.com/shafran/commerce/internal/payment/adapters"
	"github.com/shafran/commerce/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Registry *adapters.Registry
	Orders   orderdomain.Service
	Notifier notify.Notifier
	Metrics  *metrics.Metrics `optional:"true"`
}

// Service owns every write to the payment ledger. Adapters only read
// it and report what a callback means; the guarded transition here is
// what makes replays and concurrent deliveries harmless.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	registry *adapters.Registry
	orders   orderdomain.Service
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		orders:   p.Orders,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// transitionSources lists which current statuses may move to the
// target. Anything else is a replay or an out-of-order delivery and
// affects zero rows.
func transitionSources(to domain.Status) []domain.Status {
	switch to {
	case domain.StatusProcessing:
		return []domain.Status{domain.StatusPending}
	case domain.StatusCompleted:
		return []domain.Status{domain.StatusPending, domain.StatusProcessing}
	case domain.StatusFailed:
		return []domain.Status{domain.StatusPending, domain.StatusProcessing}
	case domain.StatusRefunded:
		return []domain.Status{domain.StatusCompleted}
	default:
		return nil
	}
}

func (s *Service) CreatePayment(ctx context.Context, userID snowflake.ID, req domain.CreateInput) (*domain.PaymentIntent, error) {
	method, err := domain.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	existing, err := s.repo.FindByOrderID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.StatusCompleted, domain.StatusRefunded:
			return nil, domain.ErrAlreadyPaid
		case domain.StatusPending, domain.StatusProcessing:
			return nil, domain.ErrOrderHasTransaction
		}
	}

	payment, err := s.CreatePending(ctx, s.db, domain.PendingDraft{
		UserID:   userID,
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Method:   method,
	})
	if err != nil {
		return nil, err
	}

	return s.initiate(ctx, payment, domain.InitiateOptions{
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
		Phone:       req.Phone,
	})
}

func (s *Service) CreatePending(ctx context.Context, tx *gorm.DB, draft domain.PendingDraft) (*domain.Payment, error) {
	if tx == nil {
		tx = s.db
	}
	if draft.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := s.registry.Get(draft.Method); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		currency = "UZS"
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:        s.genID.Generate(),
		UserID:    draft.UserID,
		OrderID:   draft.OrderID,
		Amount:    draft.Amount,
		Currency:  currency,
		Method:    draft.Method,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, tx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) Initiate(ctx context.Context, paymentID snowflake.ID, opts domain.InitiateOptions) (*domain.PaymentIntent, error) {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusPending {
		return nil, domain.ErrInvalidTransition
	}
	return s.initiate(ctx, payment, opts)
}

// initiate asks the provider for a redirect target. A provider failure
// leaves the pending row in place; the reconciler or a retry picks it
// up later.
func (s *Service) initiate(ctx context.Context, payment *domain.Payment, opts domain.InitiateOptions) (*domain.PaymentIntent, error) {
	adapter, err := s.registry.Get(payment.Method)
	if err != nil {
		return nil, err
	}

	resp, err := adapter.CreatePayment(ctx, domain.CreatePaymentRequest{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		Amount:      payment.Amount,
		Description: opts.Description,
		ReturnURL:   opts.ReturnURL,
		Phone:       opts.Phone,
	})
	if err != nil {
		s.log.Warn("provider create failed, payment stays pending",
			zap.String("payment_id", payment.ID.String()),
			zap.String("method", string(payment.Method)),
			zap.Error(err),
		)
		return nil, err
	}

	// Some providers assign the transaction id only at the first
	// callback; for those the response carries an empty id.
	if resp.TransactionID != "" {
		if _, err := s.repo.SetProviderTxn(ctx, s.db, payment.ID, resp.TransactionID); err != nil {
			return nil, err
		}
		payment.ProviderTxnID = &resp.TransactionID
	}

	return &domain.PaymentIntent{Payment: payment, PaymentURL: resp.PaymentURL}, nil
}

func (s *Service) HandleCallback(ctx context.Context, method domain.Method, cb domain.Callback) (*domain.CallbackResult, error) {
	adapter, err := s.registry.Get(method)
	if err != nil {
		return nil, err
	}

	result, err := adapter.HandleCallback(ctx, cb)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorizedCallback) || errors.Is(err, domain.ErrInvalidSignature) {
			s.metrics.RecordCallbackRejected(string(method), "authenticity")
			s.log.Warn("forged or misconfigured callback rejected",
				zap.String("method", string(method)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if result.Status != "" {
		payment, err := s.resolveCallbackPayment(ctx, result)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			if err := s.applyTransition(ctx, payment, result.Status); err != nil {
				return nil, err
			}
		} else {
			s.log.Warn("callback transition for unknown payment",
				zap.String("method", string(method)),
				zap.String("provider_txn_id", result.TransactionID),
			)
		}
	}

	return result, nil
}

func (s *Service) resolveCallbackPayment(ctx context.Context, result *domain.CallbackResult) (*domain.Payment, error) {
	if result.TransactionID != "" {
		payment, err := s.repo.FindByProviderTxnID(ctx, s.db, result.TransactionID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	if result.OrderID == 0 {
		return nil, nil
	}

	payment, err := s.repo.FindByOrderID(ctx, s.db, result.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}

	// First callback for this payment: bind the provider's id before
	// transitioning so later deliveries resolve directly.
	if payment.ProviderTxnID == nil && result.TransactionID != "" {
		if _, err := s.repo.SetProviderTxn(ctx, s.db, payment.ID, result.TransactionID); err != nil {
			return nil, err
		}
		payment.ProviderTxnID = &result.TransactionID
	}
	return payment, nil
}

// applyTransition performs the guarded status change and runs side
// effects only when this call actually moved the row. Replays and
// lost races affect zero rows and stay silent.
func (s *Service) applyTransition(ctx context.Context, payment *domain.Payment, to domain.Status) error {
	var completedAt *time.Time
	if to == domain.StatusCompleted {
		now := s.clock.Now()
		completedAt = &now
	}

	changed, err := s.repo.TransitionStatus(ctx, s.db, payment.ID, to, transitionSources(to), completedAt)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	payment.Status = to
	s.metrics.RecordPaymentEvent(string(payment.Method), string(to))

	if err := s.orders.SetPaymentStatus(ctx, nil, payment.OrderID, string(to)); err != nil {
		s.log.Error("propagate payment status to order",
			zap.String("payment_id", payment.ID.String()),
			zap.String("order_id", payment.OrderID.String()),
			zap.Error(err),
		)
	}

	switch to {
	case domain.StatusCompleted:
		s.notifier.Notify(ctx, notify.Event{
			Kind:    "payment_completed",
			OrderID: payment.OrderID.String(),
			Amount:  payment.Amount,
			Detail:  string(payment.Method),
		})
	case domain.StatusFailed:
		s.notifier.Notify(ctx, notify.Event{
			Kind:    "payment_failed",
			OrderID: payment.OrderID.String(),
			Amount:  payment.Amount,
			Detail:  string(payment.Method),
		})
	case domain.StatusRefunded:
		s.notifier.Notify(ctx, notify.Event{
			Kind:    "payment_refunded",
			OrderID: payment.OrderID.String(),
			Amount:  payment.Amount,
			Detail:  string(payment.Method),
		})
	}

	return nil
}

func (s *Service) CheckStatus(ctx context.Context, paymentID snowflake.ID) (domain.Status, error) {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "", domain.ErrPaymentNotFound
	}
	if payment.Status == domain.StatusCompleted || payment.Status.Terminal() {
		return payment.Status, nil
	}
	if payment.ProviderTxnID == nil {
		return payment.Status, nil
	}

	adapter, err := s.registry.Get(payment.Method)
	if err != nil {
		return "", err
	}

	polled, err := adapter.CheckStatus(ctx, *payment.ProviderTxnID)
	if err != nil {
		return "", err
	}

	switch polled {
	case domain.StatusCompleted, domain.StatusFailed:
		if err := s.applyTransition(ctx, payment, polled); err != nil {
			return "", err
		}
	case domain.StatusProcessing:
		if payment.Status == domain.StatusPending {
			if err := s.applyTransition(ctx, payment, domain.StatusProcessing); err != nil {
				return "", err
			}
		}
	}

	// Re-read: a concurrent callback may have already folded the
	// answer in.
	refreshed, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return "", err
	}
	if refreshed == nil {
		return "", domain.ErrPaymentNotFound
	}
	return refreshed.Status, nil
}

func (s *Service) Refund(ctx context.Context, userID, paymentID snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	if payment.Status != domain.StatusCompleted || payment.ProviderTxnID == nil {
		return nil, domain.ErrRefundNotAllowed
	}

	adapter, err := s.registry.Get(payment.Method)
	if err != nil {
		return nil, err
	}

	if _, err := adapter.Refund(ctx, *payment.ProviderTxnID, payment.Amount); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, payment, domain.StatusRefunded); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) ListUserPayments(ctx context.Context, userID snowflake.ID) ([]domain.Payment, error) {
	return s.repo.ListByUserID(ctx, s.db, userID)
}
