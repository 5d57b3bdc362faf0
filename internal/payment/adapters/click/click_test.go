package click

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/pkg/signature"
)

type ledgerStub struct {
	payments []*domain.Payment
}

func (l *ledgerStub) FindByProviderTxnID(ctx context.Context, providerTxnID string) (*domain.Payment, error) {
	for _, p := range l.payments {
		if p.ProviderTxnID != nil && *p.ProviderTxnID == providerTxnID {
			return p, nil
		}
	}
	return nil, nil
}

func (l *ledgerStub) FindByOrderID(ctx context.Context, orderID snowflake.ID) (*domain.Payment, error) {
	for _, p := range l.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, nil
}

const testSecret = "click-secret"

func testAdapter(t *testing.T, ledger domain.LedgerReader) *Adapter {
	t.Helper()
	adapter, err := New(config.ClickConfig{
		BaseURL:        "https://api.click.test/v2/merchant",
		PayURL:         "https://my.click.test/services/pay",
		ServiceID:      "12345",
		MerchantID:     "6789",
		MerchantUserID: "111",
		SecretKey:      testSecret,
		Timeout:        5,
	}, ledger)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func pendingPayment(node *snowflake.Node, amount int64) *domain.Payment {
	now := time.Now().UTC()
	return &domain.Payment{
		ID:        node.Generate(),
		UserID:    node.Generate(),
		OrderID:   node.Generate(),
		Amount:    amount,
		Currency:  "UZS",
		Method:    domain.MethodClick,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// buildCallback signs the form fields exactly the way the provider
// does, so tampering any field below breaks the digest.
func buildCallback(clickTransID int64, orderID, prepareID, amount string, action int) []byte {
	signTime := time.Now().Format("2006-01-02 15:04:05")
	base := strconv.FormatInt(clickTransID, 10) + "12345" + testSecret + orderID
	if action == actionComplete {
		base += prepareID
	}
	base += amount + strconv.Itoa(action) + signTime

	values := url.Values{}
	values.Set("click_trans_id", strconv.FormatInt(clickTransID, 10))
	values.Set("service_id", "12345")
	values.Set("click_paydoc_id", "555")
	values.Set("merchant_trans_id", orderID)
	if action == actionComplete {
		values.Set("merchant_prepare_id", prepareID)
	}
	values.Set("amount", amount)
	values.Set("action", strconv.Itoa(action))
	values.Set("error", "0")
	values.Set("sign_time", signTime)
	values.Set("sign_string", signature.MD5(base))
	return []byte(values.Encode())
}

func TestPrepareSuccess(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	body := buildCallback(900001, payment.OrderID.String(), "", "3660.00", actionPrepare)
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{Body: body})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if result.Status != domain.StatusProcessing {
		t.Fatalf("expected processing, got %s", result.Status)
	}
	if result.TransactionID != "900001" {
		t.Fatalf("expected provider txn 900001, got %s", result.TransactionID)
	}
	resp := result.Response.(CallbackResponse)
	if resp.Error != CodeSuccess || resp.MerchantPrepareID != payment.ID.Int64() {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestTamperedFieldRejected(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	body := buildCallback(900002, payment.OrderID.String(), "", "3660.00", actionPrepare)
	tampered, err := url.ParseQuery(string(body))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	tampered.Set("amount", "1.00")

	_, err = adapter.HandleCallback(context.Background(), domain.Callback{Body: []byte(tampered.Encode())})
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPrepareWrongAmount(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	body := buildCallback(900003, payment.OrderID.String(), "", "1.00", actionPrepare)
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{Body: body})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	resp := result.Response.(CallbackResponse)
	if resp.Error != CodeIncorrectAmount {
		t.Fatalf("expected code %d, got %+v", CodeIncorrectAmount, resp)
	}
	if result.Status != "" {
		t.Fatalf("rejected prepare must not transition, got %s", result.Status)
	}
}

func TestCompleteSuccess(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	payment.Status = domain.StatusProcessing
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	prepareID := strconv.FormatInt(payment.ID.Int64(), 10)
	body := buildCallback(900004, payment.OrderID.String(), prepareID, "3660.00", actionComplete)
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{Body: body})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	resp := result.Response.(CallbackResponse)
	if resp.Error != CodeSuccess || resp.MerchantConfirmID != payment.ID.Int64() {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCompleteUnknownPrepareID(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	body := buildCallback(900005, payment.OrderID.String(), "42", "3660.00", actionComplete)
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{Body: body})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	resp := result.Response.(CallbackResponse)
	if resp.Error != CodeTxnNotFound {
		t.Fatalf("expected code %d, got %+v", CodeTxnNotFound, resp)
	}
}

func TestCompleteAlreadyPaidReplay(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	payment.Status = domain.StatusCompleted
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	prepareID := strconv.FormatInt(payment.ID.Int64(), 10)
	body := buildCallback(900006, payment.OrderID.String(), prepareID, "3660.00", actionComplete)
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{Body: body})
	if err != nil {
		t.Fatalf("complete replay: %v", err)
	}
	resp := result.Response.(CallbackResponse)
	if resp.Error != CodeAlreadyPaid {
		t.Fatalf("expected code %d, got %+v", CodeAlreadyPaid, resp)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("replay keeps terminal state, got %s", result.Status)
	}
}

func TestCreatePaymentBuildsSignedURL(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	adapter := testAdapter(t, &ledgerStub{})

	orderID := node.Generate()
	resp, err := adapter.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		PaymentID: node.Generate(),
		OrderID:   orderID,
		Amount:    366000,
		ReturnURL: "https://shop.test/return",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	parsed, err := url.Parse(resp.PaymentURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	query := parsed.Query()
	if query.Get("transaction_param") != orderID.String() {
		t.Fatalf("expected order id in url, got %s", query.Get("transaction_param"))
	}
	if query.Get("amount") != "3660.00" {
		t.Fatalf("expected amount 3660.00, got %s", query.Get("amount"))
	}
	if resp.TransactionID != "" {
		t.Fatalf("provider txn id is assigned at prepare, got %q", resp.TransactionID)
	}
}
