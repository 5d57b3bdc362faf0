package click

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/pkg/signature"
)

// Callback error codes from the provider convention. The transport
// always answers HTTP 200; the code rides in the body.
const (
	CodeSuccess         = 0
	CodeSignatureFailed = -1
	CodeIncorrectAmount = -2
	CodeActionNotFound  = -3
	CodeAlreadyPaid     = -4
	CodeOrderNotFound   = -5
	CodeTxnNotFound     = -6
	CodeCancelled       = -9
)

const (
	actionPrepare  = 0
	actionComplete = 1

	signTimeLayout = "20060102150405"
)

type Adapter struct {
	cfg    config.ClickConfig
	client *http.Client
	ledger domain.LedgerReader
}

func New(cfg config.ClickConfig, ledger domain.LedgerReader) (*Adapter, error) {
	if cfg.ServiceID == "" || cfg.SecretKey == "" {
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

func (a *Adapter) Method() domain.Method { return domain.MethodClick }

// CallbackResponse is the body returned for both callback phases.
type CallbackResponse struct {
	ClickTransID      int64  `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// SignatureErrorResponse is what the transport answers when
// verification failed and no request fields can be trusted.
func SignatureErrorResponse() CallbackResponse {
	return CallbackResponse{Error: CodeSignatureFailed, ErrorNote: "SIGN CHECK FAILED"}
}

type callbackParams struct {
	ClickTransID      int64
	ServiceID         string
	ClickPaydocID     string
	MerchantTransID   string
	MerchantPrepareID string
	AmountRaw         string
	Action            int
	Error             int
	SignTime          string
	SignString        string
}

func parseCallback(body []byte) (*callbackParams, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil || values.Get("click_trans_id") == "" {
		return nil, domain.ErrInvalidPayload
	}

	transID, err := strconv.ParseInt(values.Get("click_trans_id"), 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}
	action, err := strconv.Atoi(values.Get("action"))
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}
	errCode, _ := strconv.Atoi(values.Get("error"))

	return &callbackParams{
		ClickTransID:      transID,
		ServiceID:         values.Get("service_id"),
		ClickPaydocID:     values.Get("click_paydoc_id"),
		MerchantTransID:   values.Get("merchant_trans_id"),
		MerchantPrepareID: values.Get("merchant_prepare_id"),
		AmountRaw:         values.Get("amount"),
		Action:            action,
		Error:             errCode,
		SignTime:          values.Get("sign_time"),
		SignString:        values.Get("sign_string"),
	}, nil
}

// verify recomputes sign_string over the raw request fields. The
// complete phase folds merchant_prepare_id into the digest.
func (a *Adapter) verify(p *callbackParams) bool {
	base := strconv.FormatInt(p.ClickTransID, 10) + p.ServiceID + a.cfg.SecretKey + p.MerchantTransID
	if p.Action == actionComplete {
		base += p.MerchantPrepareID
	}
	base += p.AmountRaw + strconv.Itoa(p.Action) + p.SignTime
	return signature.Equal(p.SignString, signature.MD5(base))
}

func (a *Adapter) HandleCallback(ctx context.Context, cb domain.Callback) (*domain.CallbackResult, error) {
	params, err := parseCallback(cb.Body)
	if err != nil {
		return nil, err
	}
	if !a.verify(params) {
		return nil, domain.ErrInvalidSignature
	}

	switch params.Action {
	case actionPrepare:
		return a.prepare(ctx, params)
	case actionComplete:
		return a.complete(ctx, params)
	default:
		return &domain.CallbackResult{
			Response: CallbackResponse{
				ClickTransID:    params.ClickTransID,
				MerchantTransID: params.MerchantTransID,
				Error:           CodeActionNotFound,
				ErrorNote:       "action not found",
			},
		}, nil
	}
}

func (a *Adapter) prepare(ctx context.Context, p *callbackParams) (*domain.CallbackResult, error) {
	respond := func(code int, note string) *domain.CallbackResult {
		return &domain.CallbackResult{
			Response: CallbackResponse{
				ClickTransID:    p.ClickTransID,
				MerchantTransID: p.MerchantTransID,
				Error:           code,
				ErrorNote:       note,
			},
		}
	}

	payment, err := a.loadByOrder(ctx, p.MerchantTransID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return respond(CodeOrderNotFound, "order not found"), nil
	}
	switch payment.Status {
	case domain.StatusCompleted:
		return respond(CodeAlreadyPaid, "already paid"), nil
	case domain.StatusFailed, domain.StatusRefunded:
		return respond(CodeCancelled, "transaction cancelled"), nil
	}
	if !amountMatches(p.AmountRaw, payment.Amount) {
		return respond(CodeIncorrectAmount, "incorrect amount"), nil
	}

	return &domain.CallbackResult{
		Status:        domain.StatusProcessing,
		TransactionID: strconv.FormatInt(p.ClickTransID, 10),
		OrderID:       payment.OrderID,
		Response: CallbackResponse{
			ClickTransID:      p.ClickTransID,
			MerchantTransID:   p.MerchantTransID,
			MerchantPrepareID: payment.ID.Int64(),
			Error:             CodeSuccess,
			ErrorNote:         "Success",
		},
	}, nil
}

func (a *Adapter) complete(ctx context.Context, p *callbackParams) (*domain.CallbackResult, error) {
	respond := func(code int, note string) *domain.CallbackResult {
		return &domain.CallbackResult{
			Response: CallbackResponse{
				ClickTransID:    p.ClickTransID,
				MerchantTransID: p.MerchantTransID,
				Error:           code,
				ErrorNote:       note,
			},
		}
	}

	payment, err := a.loadByOrder(ctx, p.MerchantTransID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return respond(CodeOrderNotFound, "order not found"), nil
	}
	if strconv.FormatInt(payment.ID.Int64(), 10) != p.MerchantPrepareID {
		return respond(CodeTxnNotFound, "transaction not found"), nil
	}

	transactionID := strconv.FormatInt(p.ClickTransID, 10)

	// A negative error field means the provider itself failed the
	// payment after prepare.
	if p.Error < 0 {
		return &domain.CallbackResult{
			Status:        domain.StatusFailed,
			TransactionID: transactionID,
			OrderID:       payment.OrderID,
			Response: CallbackResponse{
				ClickTransID:    p.ClickTransID,
				MerchantTransID: p.MerchantTransID,
				Error:           CodeCancelled,
				ErrorNote:       "transaction cancelled",
			},
		}, nil
	}

	switch payment.Status {
	case domain.StatusCompleted:
		return &domain.CallbackResult{
			Status:        domain.StatusCompleted,
			TransactionID: transactionID,
			OrderID:       payment.OrderID,
			Response: CallbackResponse{
				ClickTransID:      p.ClickTransID,
				MerchantTransID:   p.MerchantTransID,
				MerchantConfirmID: payment.ID.Int64(),
				Error:             CodeAlreadyPaid,
				ErrorNote:         "already paid",
			},
		}, nil
	case domain.StatusFailed, domain.StatusRefunded:
		return respond(CodeCancelled, "transaction cancelled"), nil
	}
	if !amountMatches(p.AmountRaw, payment.Amount) {
		return respond(CodeIncorrectAmount, "incorrect amount"), nil
	}

	return &domain.CallbackResult{
		Status:        domain.StatusCompleted,
		TransactionID: transactionID,
		OrderID:       payment.OrderID,
		Response: CallbackResponse{
			ClickTransID:      p.ClickTransID,
			MerchantTransID:   p.MerchantTransID,
			MerchantConfirmID: payment.ID.Int64(),
			Error:             CodeSuccess,
			ErrorNote:         "Success",
		},
	}, nil
}

func (a *Adapter) loadByOrder(ctx context.Context, rawOrderID string) (*domain.Payment, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(rawOrderID))
	if err != nil {
		return nil, nil
	}
	return a.ledger.FindByOrderID(ctx, orderID)
}

// The provider sends the amount in major units with decimals; the
// ledger stores minor units.
func amountMatches(raw string, minor int64) bool {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return false
	}
	return int64(math.Round(parsed*100)) == minor
}

func formatAmount(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

// --- outbound merchant API ---

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	values := url.Values{}
	values.Set("service_id", a.cfg.ServiceID)
	values.Set("merchant_id", a.cfg.MerchantID)
	values.Set("amount", formatAmount(req.Amount))
	values.Set("transaction_param", req.OrderID.String())
	if req.ReturnURL != "" {
		values.Set("return_url", req.ReturnURL)
	}

	// The provider assigns its transaction id at the prepare callback,
	// so there is nothing to store yet.
	return &domain.CreatePaymentResponse{
		PaymentURL: a.cfg.PayURL + "?" + values.Encode(),
	}, nil
}

type statusResponse struct {
	ErrorCode     int    `json:"error_code"`
	ErrorNote     string `json:"error_note"`
	PaymentStatus int    `json:"payment_status"`
}

func (a *Adapter) CheckStatus(ctx context.Context, providerTxnID string) (domain.Status, error) {
	signTime := time.Now().UTC().Format(signTimeLayout)
	payload := map[string]any{
		"service_id":  a.cfg.ServiceID,
		"payment_id":  providerTxnID,
		"sign_time":   signTime,
		"sign_string": signature.MD5(a.cfg.ServiceID + providerTxnID + a.cfg.SecretKey + signTime),
	}

	var resp statusResponse
	if err := a.post(ctx, "/payment/status", payload, &resp); err != nil {
		return "", err
	}
	if resp.ErrorCode < 0 {
		return "", fmt.Errorf("%w: %d %s", domain.ErrProviderRejected, resp.ErrorCode, resp.ErrorNote)
	}

	switch {
	case resp.PaymentStatus == 2:
		return domain.StatusCompleted, nil
	case resp.PaymentStatus < 0:
		return domain.StatusFailed, nil
	default:
		return domain.StatusProcessing, nil
	}
}

func (a *Adapter) Refund(ctx context.Context, providerTxnID string, amount int64) (*domain.RefundResult, error) {
	signTime := time.Now().UTC().Format(signTimeLayout)
	amountRaw := formatAmount(amount)
	payload := map[string]any{
		"service_id":  a.cfg.ServiceID,
		"payment_id":  providerTxnID,
		"amount":      amountRaw,
		"sign_time":   signTime,
		"sign_string": signature.MD5(a.cfg.ServiceID + providerTxnID + amountRaw + a.cfg.SecretKey + signTime),
	}

	var resp statusResponse
	if err := a.post(ctx, "/payment/reversal", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, fmt.Errorf("%w: %d %s", domain.ErrProviderRejected, resp.ErrorCode, resp.ErrorNote)
	}
	return &domain.RefundResult{RefundID: providerTxnID, Status: domain.StatusRefunded}, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.ErrProviderUnavailable
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrProviderUnavailable
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}
