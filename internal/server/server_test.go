package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/adapters/nasiya"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/pkg/signature"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakePaymentService struct {
	callbackResult *paymentdomain.CallbackResult
	callbackErr    error
	lastMethod     paymentdomain.Method
	lastPhase      string
	calls          int
}

func (f *fakePaymentService) CreatePayment(ctx context.Context, userID snowflake.ID, req paymentdomain.CreateInput) (*paymentdomain.PaymentIntent, error) {
	return nil, paymentdomain.ErrPaymentNotFound
}

func (f *fakePaymentService) CreatePending(ctx context.Context, tx *gorm.DB, draft paymentdomain.PendingDraft) (*paymentdomain.Payment, error) {
	return nil, paymentdomain.ErrPaymentNotFound
}

func (f *fakePaymentService) Initiate(ctx context.Context, paymentID snowflake.ID, opts paymentdomain.InitiateOptions) (*paymentdomain.PaymentIntent, error) {
	return nil, paymentdomain.ErrPaymentNotFound
}

func (f *fakePaymentService) HandleCallback(ctx context.Context, method paymentdomain.Method, cb paymentdomain.Callback) (*paymentdomain.CallbackResult, error) {
	f.calls++
	f.lastMethod = method
	f.lastPhase = cb.Phase
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return f.callbackResult, nil
}

func (f *fakePaymentService) CheckStatus(ctx context.Context, paymentID snowflake.ID) (paymentdomain.Status, error) {
	return paymentdomain.StatusPending, nil
}

func (f *fakePaymentService) Refund(ctx context.Context, userID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	return nil, paymentdomain.ErrPaymentNotFound
}

func (f *fakePaymentService) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return nil, paymentdomain.ErrPaymentNotFound
}

func (f *fakePaymentService) ListUserPayments(ctx context.Context, userID snowflake.ID) ([]paymentdomain.Payment, error) {
	return nil, nil
}

func newTestServer(payments paymentdomain.Service) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	srv := &Server{
		cfg: config.Config{
			AuthTokenSecret: "test-secret",
		},
		log:        zap.NewNop(),
		paymentSvc: payments,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	return srv, router
}

func bearerToken(userID string) string {
	return "Bearer " + userID + "." + signature.HMACSHA256(userID, "test-secret")
}

func TestAuthRequiredAcceptsSignedToken(t *testing.T) {
	srv, router := newTestServer(&fakePaymentService{})

	var gotUserID snowflake.ID
	router.GET("/whoami", srv.AuthRequired(), func(c *gin.Context) {
		gotUserID, _ = currentUserID(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", bearerToken("7000"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if gotUserID != snowflake.ID(7000) {
		t.Fatalf("expected user id 7000, got %d", gotUserID)
	}
}

func TestAuthRequiredRejectsForgedToken(t *testing.T) {
	srv, router := newTestServer(&fakePaymentService{})

	router.GET("/whoami", srv.AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, header := range []string{
		"",
		"Bearer 7000",
		"Bearer 7000." + signature.HMACSHA256("7000", "wrong-secret"),
		"Bearer not-a-number." + signature.HMACSHA256("not-a-number", "test-secret"),
	} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected status 401, got %d", header, resp.Code)
		}
	}
}

func TestIdentityRequiredAcceptsGuestToken(t *testing.T) {
	srv, router := newTestServer(&fakePaymentService{})

	var gotGuest string
	router.GET("/cart", srv.IdentityRequired(), func(c *gin.Context) {
		identity, _ := cartIdentity(c)
		gotGuest = identity.GuestToken
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(HeaderGuestToken, "guest-abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if gotGuest != "guest-abc" {
		t.Fatalf("expected guest token to flow to the identity, got %q", gotGuest)
	}
}

func TestPaymeCallbackAuthFailureAnswersRPCEnvelope(t *testing.T) {
	payments := &fakePaymentService{callbackErr: paymentdomain.ErrUnauthorizedCallback}
	srv, router := newTestServer(payments)
	router.POST("/callbacks/payme", srv.PaymeCallback)

	body := `{"jsonrpc":"2.0","id":42,"method":"CheckPerformTransaction","params":{}}`
	req := httptest.NewRequest(http.MethodPost, "/callbacks/payme", bytes.NewBufferString(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	// The RPC protocol reports auth failures inside the envelope, not
	// via HTTP status.
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var envelope struct {
		ID    any `json:"id"`
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error == nil || envelope.Error.Code != -32504 {
		t.Fatalf("expected auth error code -32504, got %+v", envelope.Error)
	}
	if envelope.ID == nil {
		t.Fatal("expected the response to echo the request id")
	}
}

func TestClickCallbackAuthFailureAnswersSignError(t *testing.T) {
	payments := &fakePaymentService{callbackErr: paymentdomain.ErrInvalidSignature}
	srv, router := newTestServer(payments)
	router.POST("/callbacks/click/prepare", srv.ClickPrepare)

	req := httptest.NewRequest(http.MethodPost, "/callbacks/click/prepare", bytes.NewBufferString("click_trans_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var envelope struct {
		Error     int    `json:"error"`
		ErrorNote string `json:"error_note"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error != -1 {
		t.Fatalf("expected sign check error -1, got %d", envelope.Error)
	}
}

func TestNasiyaCallbackAuthFailureAnswers401(t *testing.T) {
	payments := &fakePaymentService{callbackErr: paymentdomain.ErrUnauthorizedCallback}
	srv, router := newTestServer(payments)
	router.POST("/callbacks/nasiya/:phase", srv.NasiyaCallback)

	req := httptest.NewRequest(http.MethodPost, "/callbacks/nasiya/confirm", bytes.NewBufferString(`{"transaction_id":"t-1"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if payments.lastPhase != nasiya.PhaseConfirm {
		t.Fatalf("expected phase confirm, got %q", payments.lastPhase)
	}
}

func TestCallbackSuccessPassesProviderEnvelopeThrough(t *testing.T) {
	payments := &fakePaymentService{
		callbackResult: &paymentdomain.CallbackResult{
			Status:   paymentdomain.StatusCompleted,
			Response: map[string]any{"status": "ok", "transaction_id": "t-9"},
		},
	}
	srv, router := newTestServer(payments)
	router.POST("/callbacks/nasiya/:phase", srv.NasiyaCallback)

	req := httptest.NewRequest(http.MethodPost, "/callbacks/nasiya/confirm", bytes.NewBufferString(`{"transaction_id":"t-9"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope["transaction_id"] != "t-9" {
		t.Fatalf("expected the adapter envelope to pass through, got %v", envelope)
	}
	if payments.lastMethod != paymentdomain.MethodNasiya {
		t.Fatalf("expected method nasiya, got %q", payments.lastMethod)
	}
}
