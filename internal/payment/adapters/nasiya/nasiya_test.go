package nasiya

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
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

func setupNasiya(t *testing.T, ledger domain.LedgerReader) (*Adapter, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.Exec(
		`CREATE TABLE provider_transactions (
			id INTEGER PRIMARY KEY,
			payment_id INTEGER NOT NULL,
			provider_txn_id TEXT NOT NULL UNIQUE,
			state TEXT NOT NULL,
			amount INTEGER NOT NULL,
			created_phase TIMESTAMP,
			confirm_phase TIMESTAMP,
			reverse_phase TIMESTAMP,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("prepare schema: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	adapter, err := New(config.NasiyaConfig{
		CheckoutURL: "https://checkout.nasiya.test",
		Login:       "merchant",
		Password:    "hunter2",
		SecretKey:   "nasiya-secret",
	}, db, zap.NewNop(), node, ledger, repository.ProvideProviderTx())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter, db
}

func authHeader(login, password string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(login+":"+password)))
	return header
}

func phaseBody(t *testing.T, txnID, orderID string, amount int64) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"transaction_id": txnID,
		"order_id":       orderID,
		"amount":         amount,
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return raw
}

func pendingPayment(node *snowflake.Node, amount int64) *domain.Payment {
	now := time.Now().UTC()
	return &domain.Payment{
		ID:        node.Generate(),
		UserID:    node.Generate(),
		OrderID:   node.Generate(),
		Amount:    amount,
		Currency:  "UZS",
		Method:    domain.MethodNasiya,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRejectsBadCredentials(t *testing.T) {
	adapter, _ := setupNasiya(t, &ledgerStub{})
	_, err := adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   phaseBody(t, "tx-1", "1", 100),
		Header: authHeader("merchant", "wrong"),
		Phase:  PhaseCheck,
	})
	if !errors.Is(err, domain.ErrUnauthorizedCallback) {
		t.Fatalf("expected ErrUnauthorizedCallback, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	node, _ := snowflake.NewNode(2)
	payment := pendingPayment(node, 500000)
	adapter, _ := setupNasiya(t, &ledgerStub{payments: []*domain.Payment{payment}})
	header := authHeader("merchant", "hunter2")
	ctx := context.Background()
	txnID := "nasiya-tx-1"

	check, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   phaseBody(t, "", payment.OrderID.String(), 500000),
		Header: header,
		Phase:  PhaseCheck,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.Response.(PhaseResponse).Status != "ok" {
		t.Fatalf("expected check ok, got %+v", check.Response)
	}

	create, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   phaseBody(t, txnID, payment.OrderID.String(), 500000),
		Header: header,
		Phase:  PhaseCreate,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if create.Status != domain.StatusProcessing || create.TransactionID != txnID {
		t.Fatalf("unexpected create result %+v", create)
	}

	payment.ProviderTxnID = &txnID
	payment.Status = domain.StatusProcessing

	confirm, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   phaseBody(t, txnID, "", 0),
		Header: header,
		Phase:  PhaseConfirm,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirm.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", confirm.Status)
	}

	payment.Status = domain.StatusCompleted

	status, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   phaseBody(t, txnID, "", 0),
		Header: header,
		Phase:  PhaseStatus,
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Response.(PhaseResponse).State != string(domain.TxStateConfirmed) {
		t.Fatalf("expected CONFIRMED, got %+v", status.Response)
	}

	reverse, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   phaseBody(t, txnID, "", 0),
		Header: header,
		Phase:  PhaseReverse,
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reverse.Status != domain.StatusRefunded {
		t.Fatalf("reverse after confirm must refund, got %s", reverse.Status)
	}

	// Reversing a reversed transaction is a no-op success.
	again, err := adapter.HandleCallback(ctx, domain.Callback{
		Body:   phaseBody(t, txnID, "", 0),
		Header: header,
		Phase:  PhaseReverse,
	})
	if err != nil {
		t.Fatalf("reverse replay: %v", err)
	}
	if again.Status != "" {
		t.Fatalf("reverse replay must not transition, got %s", again.Status)
	}
	if again.Response.(PhaseResponse).Status != "ok" {
		t.Fatalf("reverse replay must succeed, got %+v", again.Response)
	}
}

func TestConfirmUnknownTransaction(t *testing.T) {
	adapter, _ := setupNasiya(t, &ledgerStub{})
	result, err := adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   phaseBody(t, "never-created", "", 0),
		Header: authHeader("merchant", "hunter2"),
		Phase:  PhaseConfirm,
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	resp := result.Response.(PhaseResponse)
	if resp.Status != "error" || resp.ErrorCode != CodeTxnNotFound {
		t.Fatalf("expected transaction not found envelope, got %+v", resp)
	}
	if result.Status != "" {
		t.Fatalf("unknown confirm must never fabricate a payment, got %s", result.Status)
	}
}

func TestCreateWrongAmount(t *testing.T) {
	node, _ := snowflake.NewNode(3)
	payment := pendingPayment(node, 500000)
	adapter, _ := setupNasiya(t, &ledgerStub{payments: []*domain.Payment{payment}})

	result, err := adapter.HandleCallback(context.Background(), domain.Callback{
		Body:   phaseBody(t, "tx-wrong", payment.OrderID.String(), 1),
		Header: authHeader("merchant", "hunter2"),
		Phase:  PhaseCreate,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp := result.Response.(PhaseResponse)
	if resp.ErrorCode != CodeWrongAmount {
		t.Fatalf("expected wrong amount, got %+v", resp)
	}
}
