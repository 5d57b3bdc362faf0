package payme

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/pkg/signature"
)

// Provider error codes from the merchant RPC protocol.
const (
	CodeUnauthorized     = -32504
	CodeInternal         = -32400
	CodeOrderNotFound    = -31050
	CodeOrderAlreadyPaid = -31051
	CodeWrongAmount      = -31001
	CodeTxnNotFound      = -31003
	CodeUnableToPerform  = -31008
)

// Transaction states reported back to the provider.
const (
	stateCreated              = 1
	statePerformed            = 2
	stateCancelled            = -1
	stateCancelledAfterPerfom = -2
)

type Adapter struct {
	cfg    config.PaymeConfig
	client *http.Client
	ledger domain.LedgerReader
	reqID  atomic.Int64
}

func New(cfg config.PaymeConfig, ledger domain.LedgerReader) (*Adapter, error) {
	if cfg.MerchantID == "" || cfg.MerchantKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		ledger: ledger,
	}, nil
}

func (a *Adapter) Method() domain.Method { return domain.MethodPayme }

type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`
}

func successResponse(id any, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// AuthErrorResponse is the envelope for callbacks that failed
// authentication; the transport layer still answers HTTP 200.
func AuthErrorResponse(id any) Response {
	return errorResponse(id, CodeUnauthorized, "unauthorized")
}

type account struct {
	OrderID string `json:"order_id"`
}

// --- outbound receipts client ---

func (a *Adapter) call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      a.reqID.Add(1),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.cfg.MerchantLogin, a.cfg.MerchantKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.ErrProviderUnavailable
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrProviderUnavailable
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return domain.ErrInvalidPayload
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %d %s", domain.ErrProviderRejected, envelope.Error.Code, envelope.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return domain.ErrInvalidPayload
		}
	}
	return nil
}

type receipt struct {
	ID    string `json:"_id"`
	State int    `json:"state"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var result struct {
		Receipt receipt `json:"receipt"`
	}
	params := map[string]any{
		"amount": req.Amount,
		"account": map[string]any{
			"order_id": req.OrderID.String(),
		},
	}
	if req.Description != "" {
		params["description"] = req.Description
	}
	if err := a.call(ctx, "receipts.create", params, &result); err != nil {
		return nil, err
	}
	if result.Receipt.ID == "" {
		return nil, domain.ErrInvalidPayload
	}

	return &domain.CreatePaymentResponse{
		TransactionID: result.Receipt.ID,
		PaymentURL:    strings.TrimRight(a.cfg.CheckoutURL, "/") + "/" + result.Receipt.ID,
	}, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, providerTxnID string) (domain.Status, error) {
	var result struct {
		Receipt receipt `json:"receipt"`
	}
	if err := a.call(ctx, "receipts.check", map[string]any{"id": providerTxnID}, &result); err != nil {
		return "", err
	}
	return receiptStatus(result.Receipt.State), nil
}

func (a *Adapter) Refund(ctx context.Context, providerTxnID string, amount int64) (*domain.RefundResult, error) {
	var result struct {
		Receipt receipt `json:"receipt"`
	}
	if err := a.call(ctx, "receipts.cancel", map[string]any{"id": providerTxnID}, &result); err != nil {
		return nil, err
	}
	return &domain.RefundResult{RefundID: providerTxnID, Status: domain.StatusRefunded}, nil
}

// Receipt state 4 is paid, 50 and above are cancelled variants.
func receiptStatus(state int) domain.Status {
	switch {
	case state == 4:
		return domain.StatusCompleted
	case state >= 50:
		return domain.StatusFailed
	default:
		return domain.StatusProcessing
	}
}

// --- inbound merchant RPC ---

func (a *Adapter) HandleCallback(ctx context.Context, cb domain.Callback) (*domain.CallbackResult, error) {
	var req Request
	if err := json.Unmarshal(cb.Body, &req); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	if !a.authorized(cb, req) {
		return nil, domain.ErrUnauthorizedCallback
	}

	switch req.Method {
	case "CheckPerformTransaction":
		return a.checkPerform(ctx, req)
	case "CreateTransaction":
		return a.createTransaction(ctx, req)
	case "PerformTransaction":
		return a.performTransaction(ctx, req)
	case "CancelTransaction":
		return a.cancelTransaction(ctx, req)
	case "CheckTransaction":
		return a.checkTransaction(ctx, req)
	default:
		return &domain.CallbackResult{
			Response: errorResponse(req.ID, -32601, "method not found"),
		}, nil
	}
}

// authorized accepts the Basic credential pair, or the legacy md5
// digest header for integrations predating Basic auth.
func (a *Adapter) authorized(cb domain.Callback, req Request) bool {
	header := strings.TrimSpace(cb.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Basic ") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return false
		}
		expected := a.cfg.MerchantLogin + ":" + a.cfg.MerchantKey
		return signature.Equal(string(decoded), expected)
	}

	legacy := strings.TrimSpace(cb.Header.Get("X-Auth-Sign"))
	if legacy == "" {
		return false
	}
	var params struct {
		ID      string  `json:"id"`
		Amount  int64   `json:"amount"`
		Account account `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return false
	}
	expected := signature.MD5(params.ID + params.Account.OrderID + strconv.FormatInt(params.Amount, 10) + a.cfg.MerchantKey)
	return signature.Equal(legacy, expected)
}

func (a *Adapter) checkPerform(ctx context.Context, req Request) (*domain.CallbackResult, error) {
	var params struct {
		Amount  int64   `json:"amount"`
		Account account `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	payment, code, message := a.loadByOrder(ctx, params.Account.OrderID)
	if code != 0 {
		return &domain.CallbackResult{Response: errorResponse(req.ID, code, message)}, nil
	}
	if payment.Amount != params.Amount {
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeWrongAmount, "wrong amount")}, nil
	}

	return &domain.CallbackResult{
		Response: successResponse(req.ID, map[string]any{"allow": true}),
	}, nil
}

func (a *Adapter) createTransaction(ctx context.Context, req Request) (*domain.CallbackResult, error) {
	var params struct {
		ID      string  `json:"id"`
		Time    int64   `json:"time"`
		Amount  int64   `json:"amount"`
		Account account `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	existing, err := a.ledger.FindByProviderTxnID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.StatusPending, domain.StatusProcessing:
			return &domain.CallbackResult{
				Status:        domain.StatusProcessing,
				TransactionID: params.ID,
				OrderID:       existing.OrderID,
				Response: successResponse(req.ID, map[string]any{
					"create_time": millis(existing.CreatedAt),
					"transaction": existing.ID.String(),
					"state":       stateCreated,
				}),
			}, nil
		default:
			return &domain.CallbackResult{Response: errorResponse(req.ID, CodeUnableToPerform, "unable to perform")}, nil
		}
	}

	payment, code, message := a.loadByOrder(ctx, params.Account.OrderID)
	if code != 0 {
		return &domain.CallbackResult{Response: errorResponse(req.ID, code, message)}, nil
	}
	if payment.Amount != params.Amount {
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeWrongAmount, "wrong amount")}, nil
	}
	if payment.ProviderTxnID != nil && *payment.ProviderTxnID != params.ID {
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeUnableToPerform, "order has another transaction")}, nil
	}

	return &domain.CallbackResult{
		Status:        domain.StatusProcessing,
		TransactionID: params.ID,
		OrderID:       payment.OrderID,
		Response: successResponse(req.ID, map[string]any{
			"create_time": params.Time,
			"transaction": payment.ID.String(),
			"state":       stateCreated,
		}),
	}, nil
}

func (a *Adapter) performTransaction(ctx context.Context, req Request) (*domain.CallbackResult, error) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	payment, err := a.ledger.FindByProviderTxnID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeTxnNotFound, "transaction not found")}, nil
	}

	switch payment.Status {
	case domain.StatusCompleted:
		// Replay: answer with the original perform time.
		performTime := millis(payment.UpdatedAt)
		if payment.CompletedAt != nil {
			performTime = millis(*payment.CompletedAt)
		}
		return &domain.CallbackResult{
			Status:        domain.StatusCompleted,
			TransactionID: params.ID,
			Response: successResponse(req.ID, map[string]any{
				"transaction":  payment.ID.String(),
				"perform_time": performTime,
				"state":        statePerformed,
			}),
		}, nil
	case domain.StatusFailed, domain.StatusRefunded:
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeUnableToPerform, "unable to perform")}, nil
	default:
		return &domain.CallbackResult{
			Status:        domain.StatusCompleted,
			TransactionID: params.ID,
			Response: successResponse(req.ID, map[string]any{
				"transaction":  payment.ID.String(),
				"perform_time": millis(time.Now().UTC()),
				"state":        statePerformed,
			}),
		}, nil
	}
}

func (a *Adapter) cancelTransaction(ctx context.Context, req Request) (*domain.CallbackResult, error) {
	var params struct {
		ID     string `json:"id"`
		Reason int    `json:"reason"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	payment, err := a.ledger.FindByProviderTxnID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeTxnNotFound, "transaction not found")}, nil
	}

	now := millis(time.Now().UTC())
	switch payment.Status {
	case domain.StatusCompleted:
		return &domain.CallbackResult{
			Status:        domain.StatusRefunded,
			TransactionID: params.ID,
			Response: successResponse(req.ID, map[string]any{
				"transaction": payment.ID.String(),
				"cancel_time": now,
				"state":       stateCancelledAfterPerfom,
			}),
		}, nil
	case domain.StatusFailed, domain.StatusRefunded:
		state := stateCancelled
		if payment.CompletedAt != nil {
			state = stateCancelledAfterPerfom
		}
		return &domain.CallbackResult{
			Status:        payment.Status,
			TransactionID: params.ID,
			Response: successResponse(req.ID, map[string]any{
				"transaction": payment.ID.String(),
				"cancel_time": millis(payment.UpdatedAt),
				"state":       state,
			}),
		}, nil
	default:
		return &domain.CallbackResult{
			Status:        domain.StatusFailed,
			TransactionID: params.ID,
			Response: successResponse(req.ID, map[string]any{
				"transaction": payment.ID.String(),
				"cancel_time": now,
				"state":       stateCancelled,
			}),
		}, nil
	}
}

func (a *Adapter) checkTransaction(ctx context.Context, req Request) (*domain.CallbackResult, error) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	payment, err := a.ledger.FindByProviderTxnID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &domain.CallbackResult{Response: errorResponse(req.ID, CodeTxnNotFound, "transaction not found")}, nil
	}

	var performTime, cancelTime int64
	state := stateCreated
	switch payment.Status {
	case domain.StatusCompleted:
		state = statePerformed
		if payment.CompletedAt != nil {
			performTime = millis(*payment.CompletedAt)
		}
	case domain.StatusFailed:
		state = stateCancelled
		cancelTime = millis(payment.UpdatedAt)
	case domain.StatusRefunded:
		state = stateCancelledAfterPerfom
		cancelTime = millis(payment.UpdatedAt)
		if payment.CompletedAt != nil {
			performTime = millis(*payment.CompletedAt)
		}
	}

	return &domain.CallbackResult{
		Response: successResponse(req.ID, map[string]any{
			"create_time":  millis(payment.CreatedAt),
			"perform_time": performTime,
			"cancel_time":  cancelTime,
			"transaction":  payment.ID.String(),
			"state":        state,
			"reason":       nil,
		}),
	}, nil
}

func (a *Adapter) loadByOrder(ctx context.Context, rawOrderID string) (*domain.Payment, int, string) {
	orderID, err := parseOrderID(rawOrderID)
	if err != nil {
		return nil, CodeOrderNotFound, "order not found"
	}
	payment, err := a.ledger.FindByOrderID(ctx, orderID)
	if err != nil || payment == nil {
		return nil, CodeOrderNotFound, "order not found"
	}
	if payment.Status == domain.StatusCompleted || payment.Status == domain.StatusRefunded {
		return nil, CodeOrderAlreadyPaid, "order already paid"
	}
	return payment, 0, ""
}

func parseOrderID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
