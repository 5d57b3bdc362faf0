package nasiya

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/pkg/signature"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Lifecycle phases pushed by the provider. The merchant never calls
// out; everything arrives as Basic-Auth webhooks.
const (
	PhaseCheck   = "check"
	PhaseCreate  = "create"
	PhaseConfirm = "confirm"
	PhaseReverse = "reverse"
	PhaseStatus  = "status"
)

const (
	CodeOrderNotFound = 101
	CodeWrongAmount   = 102
	CodeAlreadyPaid   = 103
	CodeTxnNotFound   = 104
	CodeWrongState    = 105
	CodePhaseUnknown  = 199
)

type Adapter struct {
	cfg    config.NasiyaConfig
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	ledger domain.LedgerReader
	txRepo domain.ProviderTxRepository
}

func New(
	cfg config.NasiyaConfig,
	db *gorm.DB,
	log *zap.Logger,
	genID *snowflake.Node,
	ledger domain.LedgerReader,
	txRepo domain.ProviderTxRepository,
) (*Adapter, error) {
	if cfg.Login == "" || cfg.Password == "" {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{
		cfg:    cfg,
		db:     db,
		log:    log.Named("payment.nasiya"),
		genID:  genID,
		ledger: ledger,
		txRepo: txRepo,
	}, nil
}

func (a *Adapter) Method() domain.Method { return domain.MethodNasiya }

type PhaseResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	State         string `json:"state,omitempty"`
	ErrorCode     int    `json:"error_code,omitempty"`
	ErrorNote     string `json:"error_note,omitempty"`
}

func okResponse(transactionID string, state domain.TxState) PhaseResponse {
	return PhaseResponse{Status: "ok", TransactionID: transactionID, State: string(state)}
}

func errResponse(code int, note string) PhaseResponse {
	return PhaseResponse{Status: "error", ErrorCode: code, ErrorNote: note}
}

// UnauthorizedResponse is the envelope for callbacks whose credential
// pair did not match.
func UnauthorizedResponse() PhaseResponse {
	return PhaseResponse{Status: "error", ErrorCode: 401, ErrorNote: "unauthorized"}
}

type phaseRequest struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
}

func (a *Adapter) authorized(header string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}
	return signature.Equal(string(decoded), a.cfg.Login+":"+a.cfg.Password)
}

func (a *Adapter) HandleCallback(ctx context.Context, cb domain.Callback) (*domain.CallbackResult, error) {
	if !a.authorized(cb.Header.Get("Authorization")) {
		return nil, domain.ErrUnauthorizedCallback
	}

	var req phaseRequest
	if err := json.Unmarshal(cb.Body, &req); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch cb.Phase {
	case PhaseCheck:
		return a.check(ctx, req)
	case PhaseCreate:
		return a.create(ctx, req)
	case PhaseConfirm:
		return a.confirm(ctx, req)
	case PhaseReverse:
		return a.reverse(ctx, req)
	case PhaseStatus:
		return a.status(ctx, req)
	default:
		return &domain.CallbackResult{Response: errResponse(CodePhaseUnknown, "unknown phase")}, nil
	}
}

func (a *Adapter) check(ctx context.Context, req phaseRequest) (*domain.CallbackResult, error) {
	payment, err := a.loadByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &domain.CallbackResult{Response: errResponse(CodeOrderNotFound, "order not found")}, nil
	}
	switch payment.Status {
	case domain.StatusCompleted, domain.StatusRefunded:
		return &domain.CallbackResult{Response: errResponse(CodeAlreadyPaid, "order already paid")}, nil
	case domain.StatusFailed:
		return &domain.CallbackResult{Response: errResponse(CodeWrongState, "payment failed")}, nil
	}
	if req.Amount != payment.Amount {
		return &domain.CallbackResult{Response: errResponse(CodeWrongAmount, "wrong amount")}, nil
	}

	return &domain.CallbackResult{Response: okResponse("", domain.TxStatePending)}, nil
}

func (a *Adapter) create(ctx context.Context, req phaseRequest) (*domain.CallbackResult, error) {
	if req.TransactionID == "" {
		return nil, domain.ErrInvalidPayload
	}

	existing, err := a.txRepo.FindByProviderTxnID(ctx, a.db, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Redelivery of a create we already recorded.
		payment, err := a.ledger.FindByProviderTxnID(ctx, req.TransactionID)
		if err != nil {
			return nil, err
		}
		result := &domain.CallbackResult{
			Status:        domain.StatusProcessing,
			TransactionID: req.TransactionID,
			Response:      okResponse(req.TransactionID, existing.State),
		}
		if payment != nil {
			result.OrderID = payment.OrderID
		}
		return result, nil
	}

	payment, err := a.loadByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &domain.CallbackResult{Response: errResponse(CodeOrderNotFound, "order not found")}, nil
	}
	if payment.Status != domain.StatusPending && payment.Status != domain.StatusProcessing {
		return &domain.CallbackResult{Response: errResponse(CodeWrongState, "payment not payable")}, nil
	}
	if req.Amount != payment.Amount {
		return &domain.CallbackResult{Response: errResponse(CodeWrongAmount, "wrong amount")}, nil
	}

	now := time.Now().UTC()
	if err := a.txRepo.Create(ctx, a.db, &domain.ProviderTransaction{
		ID:            a.genID.Generate(),
		PaymentID:     payment.ID,
		ProviderTxnID: req.TransactionID,
		State:         domain.TxStateCreated,
		Amount:        req.Amount,
		CreatedPhase:  &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return nil, err
	}

	return &domain.CallbackResult{
		Status:        domain.StatusProcessing,
		TransactionID: req.TransactionID,
		OrderID:       payment.OrderID,
		Response:      okResponse(req.TransactionID, domain.TxStateCreated),
	}, nil
}

func (a *Adapter) confirm(ctx context.Context, req phaseRequest) (*domain.CallbackResult, error) {
	tx, err := a.txRepo.FindByProviderTxnID(ctx, a.db, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		// Never fabricate a payment for an unknown transaction.
		return &domain.CallbackResult{Response: errResponse(CodeTxnNotFound, "transaction not found")}, nil
	}

	switch tx.State {
	case domain.TxStateConfirmed:
		return &domain.CallbackResult{
			Status:        domain.StatusCompleted,
			TransactionID: req.TransactionID,
			Response:      okResponse(req.TransactionID, domain.TxStateConfirmed),
		}, nil
	case domain.TxStateReversed, domain.TxStateFailed:
		return &domain.CallbackResult{Response: errResponse(CodeWrongState, "transaction not confirmable")}, nil
	}

	now := time.Now().UTC()
	ok, err := a.txRepo.TransitionState(ctx, a.db, tx.ID, domain.TxStateConfirmed,
		[]domain.TxState{domain.TxStatePending, domain.TxStateCreated}, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.log.Warn("confirm lost transition race", zap.String("provider_txn_id", req.TransactionID))
	}

	return &domain.CallbackResult{
		Status:        domain.StatusCompleted,
		TransactionID: req.TransactionID,
		Response:      okResponse(req.TransactionID, domain.TxStateConfirmed),
	}, nil
}

func (a *Adapter) reverse(ctx context.Context, req phaseRequest) (*domain.CallbackResult, error) {
	tx, err := a.txRepo.FindByProviderTxnID(ctx, a.db, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return &domain.CallbackResult{Response: errResponse(CodeTxnNotFound, "transaction not found")}, nil
	}

	// Reversing a reversed transaction is a no-op success.
	if tx.State == domain.TxStateReversed {
		return &domain.CallbackResult{
			TransactionID: req.TransactionID,
			Response:      okResponse(req.TransactionID, domain.TxStateReversed),
		}, nil
	}

	wasConfirmed := tx.State == domain.TxStateConfirmed

	now := time.Now().UTC()
	if _, err := a.txRepo.TransitionState(ctx, a.db, tx.ID, domain.TxStateReversed,
		[]domain.TxState{domain.TxStatePending, domain.TxStateCreated, domain.TxStateConfirmed}, now); err != nil {
		return nil, err
	}

	status := domain.StatusFailed
	if wasConfirmed {
		status = domain.StatusRefunded
	}
	return &domain.CallbackResult{
		Status:        status,
		TransactionID: req.TransactionID,
		Response:      okResponse(req.TransactionID, domain.TxStateReversed),
	}, nil
}

func (a *Adapter) status(ctx context.Context, req phaseRequest) (*domain.CallbackResult, error) {
	tx, err := a.txRepo.FindByProviderTxnID(ctx, a.db, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return &domain.CallbackResult{Response: errResponse(CodeTxnNotFound, "transaction not found")}, nil
	}
	return &domain.CallbackResult{
		TransactionID: req.TransactionID,
		Response:      okResponse(req.TransactionID, tx.State),
	}, nil
}

func (a *Adapter) loadByOrder(ctx context.Context, rawOrderID string) (*domain.Payment, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(rawOrderID))
	if err != nil {
		return nil, nil
	}
	return a.ledger.FindByOrderID(ctx, orderID)
}

// CreatePayment signs a redirect URL locally; the provider drives the
// rest of the lifecycle through webhooks.
func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	values := url.Values{}
	values.Set("merchant", a.cfg.Login)
	values.Set("order_id", req.OrderID.String())
	values.Set("amount", strconv.FormatInt(req.Amount, 10))
	if req.ReturnURL != "" {
		values.Set("return_url", req.ReturnURL)
	}
	if req.Phone != "" {
		values.Set("phone", req.Phone)
	}
	values.Set("sign", signature.HMACSHA256(req.OrderID.String()+":"+strconv.FormatInt(req.Amount, 10), a.cfg.SecretKey))

	return &domain.CreatePaymentResponse{
		PaymentURL: strings.TrimRight(a.cfg.CheckoutURL, "/") + "/?" + values.Encode(),
	}, nil
}

// CheckStatus answers from the recorded phase history; the provider
// exposes no polling API.
func (a *Adapter) CheckStatus(ctx context.Context, providerTxnID string) (domain.Status, error) {
	tx, err := a.txRepo.FindByProviderTxnID(ctx, a.db, providerTxnID)
	if err != nil {
		return "", err
	}
	if tx == nil {
		return "", domain.ErrTransactionNotFound
	}
	switch tx.State {
	case domain.TxStateConfirmed:
		return domain.StatusCompleted, nil
	case domain.TxStateReversed, domain.TxStateFailed:
		return domain.StatusFailed, nil
	default:
		return domain.StatusProcessing, nil
	}
}

// Refund is provider-initiated only (the reverse phase).
func (a *Adapter) Refund(ctx context.Context, providerTxnID string, amount int64) (*domain.RefundResult, error) {
	return nil, domain.ErrRefundNotAllowed
}
