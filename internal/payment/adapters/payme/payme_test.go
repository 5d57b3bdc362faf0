package payme

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
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

func testAdapter(t *testing.T, ledger domain.LedgerReader) *Adapter {
	t.Helper()
	adapter, err := New(config.PaymeConfig{
		BaseURL:       "https://checkout.test/api",
		CheckoutURL:   "https://checkout.test",
		MerchantID:    "merchant-1",
		MerchantLogin: "Paycom",
		MerchantKey:   "secret-key",
		Timeout:       5,
	}, ledger)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func rpcBody(t *testing.T, id int, method string, params map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return raw
}

func basicHeader(login, key string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(login+":"+key)))
	return header
}

func pendingPayment(node *snowflake.Node, amount int64) *domain.Payment {
	now := time.Now().UTC()
	return &domain.Payment{
		ID:        node.Generate(),
		UserID:    node.Generate(),
		OrderID:   node.Generate(),
		Amount:    amount,
		Currency:  "UZS",
		Method:    domain.MethodPayme,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCallbackRejectsBadCredentials(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	adapter := testAdapter(t, &ledgerStub{})
	body := rpcBody(t, 1, "CheckPerformTransaction", map[string]any{
		"amount":  100000,
		"account": map[string]any{"order_id": node.Generate().String()},
	})

	_, err := adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   body,
		Header: basicHeader("Paycom", "wrong-key"),
	})
	if !errors.Is(err, domain.ErrUnauthorizedCallback) {
		t.Fatalf("expected ErrUnauthorizedCallback, got %v", err)
	}
}

func TestLegacySignatureAccepted(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})

	txnID := "txn-legacy-1"
	params := map[string]any{
		"id":      txnID,
		"time":    time.Now().UnixMilli(),
		"amount":  366000,
		"account": map[string]any{"order_id": payment.OrderID.String()},
	}
	header := http.Header{}
	header.Set("X-Auth-Sign", signature.MD5(txnID+payment.OrderID.String()+strconv.Itoa(366000)+"secret-key"))

	result, err := adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   rpcBody(t, 7, "CreateTransaction", params),
		Header: header,
	})
	if err != nil {
		t.Fatalf("legacy callback: %v", err)
	}
	if result.Status != domain.StatusProcessing {
		t.Fatalf("expected processing, got %s", result.Status)
	}

	// Tampering any signed field must invalidate the digest.
	params["amount"] = 1
	_, err = adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   rpcBody(t, 8, "CreateTransaction", params),
		Header: header,
	})
	if !errors.Is(err, domain.ErrUnauthorizedCallback) {
		t.Fatalf("expected ErrUnauthorizedCallback after tampering, got %v", err)
	}
}

func TestCheckPerformTransaction(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})
	header := basicHeader("Paycom", "secret-key")

	cases := []struct {
		name     string
		amount   int64
		orderID  string
		wantCode int
	}{
		{"allowed", 366000, payment.OrderID.String(), 0},
		{"wrong amount", 1, payment.OrderID.String(), CodeWrongAmount},
		{"unknown order", 366000, node.Generate().String(), CodeOrderNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := adapter.HandleCallback(context.Background(), domain.Callback{
				Body: rpcBody(t, 1, "CheckPerformTransaction", map[string]any{
					"amount":  tc.amount,
					"account": map[string]any{"order_id": tc.orderID},
				}),
				Header: header,
			})
			if err != nil {
				t.Fatalf("callback: %v", err)
			}
			resp := result.Response.(Response)
			if tc.wantCode == 0 {
				if resp.Error != nil {
					t.Fatalf("expected success, got error %+v", resp.Error)
				}
				if result.Status != "" {
					t.Fatalf("check must not request a transition, got %s", result.Status)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tc.wantCode {
				t.Fatalf("expected code %d, got %+v", tc.wantCode, resp.Error)
			}
		})
	}
}

func TestPerformAndCancelFlow(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	payment := pendingPayment(node, 366000)
	adapter := testAdapter(t, &ledgerStub{payments: []*domain.Payment{payment}})
	header := basicHeader("Paycom", "secret-key")
	ctx := context.Background()
	txnID := "payme-txn-42"

	create, err := adapter.HandleCallback(ctx, domain.Callback{
		Body: rpcBody(t, 1, "CreateTransaction", map[string]any{
			"id":      txnID,
			"time":    time.Now().UnixMilli(),
			"amount":  366000,
			"account": map[string]any{"order_id": payment.OrderID.String()},
		}),
		Header: header,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if create.Status != domain.StatusProcessing || create.TransactionID != txnID {
		t.Fatalf("unexpected create result %+v", create)
	}

	// Simulate the orchestrator having applied the transition.
	payment.ProviderTxnID = &txnID
	payment.Status = domain.StatusProcessing

	perform, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   rpcBody(t, 2, "PerformTransaction", map[string]any{"id": txnID}),
		Header: header,
	})
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if perform.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", perform.Status)
	}

	completedAt := time.Now().UTC()
	payment.Status = domain.StatusCompleted
	payment.CompletedAt = &completedAt

	replay, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   rpcBody(t, 3, "PerformTransaction", map[string]any{"id": txnID}),
		Header: header,
	})
	if err != nil {
		t.Fatalf("perform replay: %v", err)
	}
	resp := replay.Response.(Response)
	if resp.Error != nil {
		t.Fatalf("replay must succeed, got %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	if result["state"] != statePerformed {
		t.Fatalf("expected state %d, got %v", statePerformed, result["state"])
	}

	cancel, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   rpcBody(t, 4, "CancelTransaction", map[string]any{"id": txnID, "reason": 5}),
		Header: header,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancel.Status != domain.StatusRefunded {
		t.Fatalf("cancel after perform must refund, got %s", cancel.Status)
	}
}

func TestPerformUnknownTransaction(t *testing.T) {
	adapter := testAdapter(t, &ledgerStub{})
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   rpcBody(t, 1, "PerformTransaction", map[string]any{"id": "missing"}),
		Header: basicHeader("Paycom", "secret-key"),
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	resp := result.Response.(Response)
	if resp.Error == nil || resp.Error.Code != CodeTxnNotFound {
		t.Fatalf("expected code %d, got %+v", CodeTxnNotFound, resp.Error)
	}
	if result.Status != "" {
		t.Fatalf("unknown transaction must not transition, got %s", result.Status)
	}
}
