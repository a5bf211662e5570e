package gateway

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"curvesale/core/types"
	"curvesale/native/amm"
	"curvesale/native/sale"
	"curvesale/native/token"
	"curvesale/storage"
)

func testAddr(last byte) types.Address {
	var out types.Address
	out[19] = last
	return out
}

type fixture struct {
	server *httptest.Server
	engine *sale.Engine
	pay    *token.Ledger
	buyer  types.Address
	owner  types.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var (
		engineAddr   = testAddr(0x0E)
		ownerAddr    = testAddr(0x0A)
		creatorAddr  = testAddr(0x0C)
		platformAddr = testAddr(0x0F)
		tokenAddr    = testAddr(0x01)
		assetAddr    = testAddr(0x02)
		venueAddr    = testAddr(0xA0)
		treasury     = testAddr(0xAD)
		buyer        = testAddr(0xB1)
	)

	tok := token.NewLedger("Curve Sale Token", "CST", 18, sale.TotalSupplyCap)
	tok.GrantMinter(engineAddr)
	pay := token.NewLedger("Test Dollar", "TUSD", 6, nil)
	pay.GrantMinter(treasury)

	venue, err := amm.NewVenue(venueAddr)
	if err != nil {
		t.Fatalf("venue construction failed: %v", err)
	}
	venue.RegisterToken(tokenAddr, tok)
	venue.RegisterToken(assetAddr, pay)

	engine, err := sale.NewEngine(sale.Params{
		Token:        tok,
		Payment:      pay,
		Venue:        venue,
		TokenAddress: tokenAddr,
		AssetAddress: assetAddr,
		Engine:       engineAddr,
		Owner:        ownerAddr,
		Creator:      creatorAddr,
		Platform:     platformAddr,
		ReserveRatio: 200_000,
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}

	funding := new(big.Int).Mul(big.NewInt(1_000), sale.AssetUnit)
	if err := pay.Mint(treasury, buyer, funding); err != nil {
		t.Fatalf("funding buyer failed: %v", err)
	}
	if err := pay.Approve(buyer, engineAddr, funding); err != nil {
		t.Fatalf("buyer approval failed: %v", err)
	}

	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv := NewServer(engine, store, slog.Default(), RateLimit{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, engine: engine, pay: pay, buyer: buyer, owner: ownerAddr}
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp.StatusCode, body
}

func (f *fixture) post(t *testing.T, path string, payload any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestStateEndpointBeforeAnySale(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/v1/sale")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if body["tokensSold"] != "0" || body["assetRaised"] != "0" {
		t.Fatalf("fresh sale not empty: %v", body)
	}
	if body["currentPrice"] != "0.1" {
		t.Fatalf("expected initial price 0.1, got %v", body["currentPrice"])
	}
	if body["finalized"] != false {
		t.Fatalf("fresh sale reported finalized")
	}
}

func TestQuoteEndpoint(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/v1/sale/quote?amount=10")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if body["tokenAmount"] != "100" {
		t.Fatalf("10 units at 0.10 should quote 100 tokens, got %v", body["tokenAmount"])
	}

	status, _ = f.get(t, "/v1/sale/quote?amount=abc")
	if status != http.StatusBadRequest {
		t.Fatalf("malformed amount accepted: status %d", status)
	}
	status, _ = f.get(t, "/v1/sale/quote")
	if status != http.StatusBadRequest {
		t.Fatalf("missing amount accepted: status %d", status)
	}
}

func TestPurchaseEndpointCommitsAndPersists(t *testing.T) {
	f := newFixture(t)

	status, body := f.post(t, "/v1/sale/purchase", purchaseRequest{
		Buyer:  f.buyer.Hex(),
		Amount: "10",
	})
	if status != http.StatusOK {
		t.Fatalf("purchase rejected: status %d body %v", status, body)
	}
	if body["tokenAmount"] != "100" {
		t.Fatalf("first purchase should yield 100 tokens, got %v", body["tokenAmount"])
	}
	if body["id"] == "" {
		t.Fatalf("receipt id missing")
	}

	status, state := f.get(t, "/v1/sale")
	if status != http.StatusOK {
		t.Fatalf("state read failed: %d", status)
	}
	if state["assetRaised"] != "10" {
		t.Fatalf("ledger did not advance: %v", state)
	}

	resp, err := http.Get(f.server.URL + "/v1/sale/purchases?buyer=" + f.buyer.Hex())
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	defer resp.Body.Close()
	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 persisted purchase, got %d", len(records))
	}
}

func TestPurchaseEndpointRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	status, _ := f.post(t, "/v1/sale/purchase", purchaseRequest{Buyer: "nope", Amount: "10"})
	if status != http.StatusBadRequest {
		t.Fatalf("invalid buyer accepted: %d", status)
	}
	status, _ = f.post(t, "/v1/sale/purchase", purchaseRequest{Buyer: f.buyer.Hex(), Amount: "0"})
	if status != http.StatusBadRequest {
		t.Fatalf("zero amount accepted: %d", status)
	}
	status, _ = f.post(t, "/v1/sale/purchase", purchaseRequest{Buyer: f.buyer.Hex(), Amount: "1.0000001"})
	if status != http.StatusBadRequest {
		t.Fatalf("sub-unit precision accepted: %d", status)
	}
}

func TestFinalizeEndpointAuthorization(t *testing.T) {
	f := newFixture(t)

	status, _ := f.post(t, "/v1/sale/purchase", purchaseRequest{Buyer: f.buyer.Hex(), Amount: "10"})
	if status != http.StatusOK {
		t.Fatalf("seed purchase failed: %d", status)
	}

	status, _ = f.post(t, "/v1/sale/finalize", callerRequest{Caller: f.buyer.Hex()})
	if status != http.StatusForbidden {
		t.Fatalf("non-owner finalize accepted: %d", status)
	}

	status, body := f.post(t, "/v1/sale/finalize", callerRequest{Caller: f.owner.Hex()})
	if status != http.StatusOK {
		t.Fatalf("owner finalize rejected: %d body %v", status, body)
	}

	status, _ = f.post(t, "/v1/sale/finalize", callerRequest{Caller: f.owner.Hex()})
	if status != http.StatusConflict {
		t.Fatalf("second finalize should conflict, got %d", status)
	}

	status, _ = f.post(t, "/v1/sale/purchase", purchaseRequest{Buyer: f.buyer.Hex(), Amount: "10"})
	if status != http.StatusConflict {
		t.Fatalf("purchase after finalize should conflict, got %d", status)
	}
}

func TestRetryDistributionWithoutPendingWork(t *testing.T) {
	f := newFixture(t)

	status, _ := f.post(t, "/v1/sale/distribution/retry", callerRequest{Caller: f.owner.Hex()})
	if status != http.StatusConflict {
		t.Fatalf("retry with nothing pending should conflict, got %d", status)
	}
}

func TestRateLimitEnforced(t *testing.T) {
	f := newFixture(t)

	srv := NewServer(f.engine, nil, slog.Default(), RateLimit{RequestsPerMinute: 60, Burst: 2})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Post(ts.URL+"/v1/sale/finalize", "application/json",
			bytes.NewReader([]byte(`{"caller":"bad"}`)))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("burst of mutating requests never rate limited")
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}
