package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/vaultforge/agent_layer/internal/app"
	"github.com/vaultforge/agent_layer/internal/app/domain/wallet"
)

const (
	testChainID = uint64(42161)
	testAccount = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
)

type stubPending struct{ hash string }

func (p stubPending) Hash() string { return p.hash }
func (p stubPending) Wait(ctx context.Context) (wallet.Receipt, error) {
	return wallet.Receipt{TxHash: p.hash, BlockNumber: 1, Status: wallet.StatusSucceeded}, nil
}

type stubSigner struct {
	balance *big.Int
}

func (s *stubSigner) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	return new(big.Int).Set(s.balance), nil
}

func (s *stubSigner) SendTransaction(ctx context.Context, tx wallet.Transfer) (wallet.PendingTransaction, error) {
	return stubPending{hash: "0xfeed"}, nil
}

func newTestApp(t *testing.T, balance *big.Int) *app.Application {
	t.Helper()
	application, err := app.New(app.Stores{}, nil, &stubSigner{balance: balance},
		app.Config{ChainID: testChainID}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return application
}

func marshal(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(data)
}

func decode(t *testing.T, body *bytes.Buffer, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
}

func TestHandlerPurchaseLifecycle(t *testing.T) {
	application := newTestApp(t, big.NewInt(1e18))
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	defer application.Stop(context.Background())

	router := New(application, nil).Router()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("catalog: %d", resp.Code)
	}
	var catalog struct {
		Agents []struct {
			ID string `json:"id"`
		} `json:"agents"`
	}
	decode(t, resp.Body, &catalog)
	if len(catalog.Agents) == 0 {
		t.Fatal("catalog is empty")
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/session",
		marshal(t, map[string]string{"account": testAccount})))
	if resp.Code != http.StatusOK {
		t.Fatalf("connect: %d %s", resp.Code, resp.Body)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/purchases",
		marshal(t, map[string]string{"agent_id": "momentum-alpha"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("purchase: %d %s", resp.Code, resp.Body)
	}
	var purchase struct {
		TxHash       string `json:"txHash"`
		AlreadyOwned bool   `json:"alreadyOwned"`
		Recorded     bool   `json:"recorded"`
	}
	decode(t, resp.Body, &purchase)
	if purchase.TxHash != "0xfeed" || purchase.AlreadyOwned || !purchase.Recorded {
		t.Fatalf("purchase response: %+v", purchase)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/accounts/"+testAccount+"/entitlements", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("entitlements: %d", resp.Code)
	}
	var owned struct {
		PurchasedAgents []string `json:"purchasedAgents"`
	}
	decode(t, resp.Body, &owned)
	if len(owned.PurchasedAgents) != 1 || owned.PurchasedAgents[0] != "momentum-alpha" {
		t.Fatalf("purchasedAgents = %v", owned.PurchasedAgents)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/selection", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("selection: %d %s", resp.Code, resp.Body)
	}
	var sel struct {
		AgentID string `json:"agentId"`
		State   string `json:"state"`
	}
	decode(t, resp.Body, &sel)
	if sel.AgentID != "momentum-alpha" || sel.State != "confirmed" {
		t.Fatalf("selection = %+v", sel)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/selection/confirm", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", resp.Code, resp.Body)
	}

	// A repeated purchase short-circuits on existing ownership.
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/purchases",
		marshal(t, map[string]string{"agent_id": "momentum-alpha"})))
	if resp.Code != http.StatusOK {
		t.Fatalf("repeat purchase: %d %s", resp.Code, resp.Body)
	}
	decode(t, resp.Body, &purchase)
	if !purchase.AlreadyOwned {
		t.Fatal("repeat purchase not reported as already owned")
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/session", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("disconnect: %d", resp.Code)
	}
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/selection", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("selection after disconnect: %d", resp.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	// Balance below every catalog price.
	application := newTestApp(t, big.NewInt(1))
	router := New(application, nil).Router()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/purchases",
		marshal(t, map[string]string{"agent_id": "momentum-alpha"})))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("purchase without account: %d, want 400", resp.Code)
	}

	application.Connect(context.Background(), testAccount)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/purchases",
		marshal(t, map[string]string{"agent_id": "no-such-agent"})))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("purchase of unknown agent: %d, want 404", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/purchases",
		marshal(t, map[string]string{"agent_id": "momentum-alpha"})))
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("purchase with empty balance: %d, want 402", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/catalog/no-such-agent", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown catalog agent: %d, want 404", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/selection/confirm", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("confirm with no selection: %d, want 404", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/selection",
		marshal(t, map[string]string{"agent_id": "momentum-alpha"})))
	if resp.Code != http.StatusOK {
		t.Fatalf("select proposed: %d %s", resp.Code, resp.Body)
	}
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/selection/confirm", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("confirm unowned selection: %d, want 403", resp.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(secret, []string{"/healthz"}, nil)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(AccountFromContext(r.Context())))
	})
	handler := auth.Handler(inner)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("skip path rejected: %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d, want 401", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d, want 401", resp.Code)
	}

	token, err := IssueToken(secret, "0xAB5801", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d", resp.Code)
	}
	if resp.Body.String() != "0xab5801" {
		t.Errorf("context account = %q, want lowercased address", resp.Body.String())
	}

	expired, err := IssueToken(secret, "0xAB5801", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d, want 401", resp.Code)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/purchases", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d, want 204", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/catalog", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	req.RemoteAddr = "10.0.0.1:50000"

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("first request: %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", resp.Code)
	}

	// A different client has its own budget.
	other := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	other.RemoteAddr = "10.0.0.2:50000"
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, other)
	if resp.Code != http.StatusOK {
		t.Fatalf("other client blocked: %d", resp.Code)
	}
}
