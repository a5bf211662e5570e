// Package gateway exposes the sale engine over HTTP: read-only price and
// ledger queries plus the mutating purchase and finalize operations.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"curvesale/core/types"
	"curvesale/native/sale"
	"curvesale/observability/metrics"
	"curvesale/storage"
)

const (
	assetDecimals = 6
	tokenDecimals = 18
)

// Server wires the sale engine, receipt store, and metrics behind a router.
type Server struct {
	engine *sale.Engine
	store  *storage.Store
	logger *slog.Logger
	limits RateLimit
}

// NewServer constructs the HTTP server. store may be nil when persistence is
// disabled.
func NewServer(engine *sale.Engine, store *storage.Store, logger *slog.Logger, limits RateLimit) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, store: store, logger: logger, limits: limits}
}

// Handler builds the chi route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/sale", func(sr chi.Router) {
		sr.Get("/", s.handleState)
		sr.Get("/price", s.handlePrice)
		sr.Get("/quote", s.handleQuote)
		sr.Get("/purchases", s.handlePurchases)

		limiter := NewRateLimiter(s.limits, s.logger)
		sr.Group(func(mr chi.Router) {
			mr.Use(limiter.Middleware)
			mr.Post("/purchase", s.handlePurchase)
			mr.Post("/finalize", s.handleFinalize)
			mr.Post("/distribution/retry", s.handleRetryDistribution)
		})
	})

	return r
}

type stateResponse struct {
	TokensSold   string `json:"tokensSold"`
	AssetRaised  string `json:"assetRaised"`
	CurrentPrice string `json:"currentPrice"`
	Finalized    bool   `json:"finalized"`
	Distributed  bool   `json:"distributed"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		TokensSold:   formatAmount(snap.TokensSold, tokenDecimals),
		AssetRaised:  formatAmount(snap.AssetRaised, assetDecimals),
		CurrentPrice: formatAmount(s.engine.CurrentPrice(), assetDecimals),
		Finalized:    snap.Finalized,
		Distributed:  s.engine.DistributionState().Complete(),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"price": formatAmount(s.engine.CurrentPrice(), assetDecimals),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount(r.URL.Query().Get("amount"), assetDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokens := s.engine.Quote(amount)
	writeJSON(w, http.StatusOK, map[string]string{
		"assetAmount": formatAmount(amount, assetDecimals),
		"tokenAmount": formatAmount(tokens, tokenDecimals),
	})
}

type purchaseRequest struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

type purchaseResponse struct {
	ID          string `json:"id"`
	Buyer       string `json:"buyer"`
	AssetAmount string `json:"assetAmount"`
	TokenAmount string `json:"tokenAmount"`
	Price       string `json:"price"`
	Finalized   bool   `json:"finalized"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	buyer, err := types.ParseAddress(req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount, assetDecimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := s.engine.Purchase(buyer, amount)
	if err != nil && receipt == nil {
		s.observeFailure("purchase", err)
		writeEngineError(w, err)
		return
	}
	if err != nil {
		// The purchase itself committed; the cap-triggered distribution needs
		// an operator retry.
		s.observeFailure("finalize", err)
		s.logger.Error("cap-triggered finalize incomplete", "error", err)
	}

	snap := s.engine.Snapshot()
	metrics.Sale().ObservePurchase(
		amountFloat(snap.TokensSold, tokenDecimals),
		amountFloat(snap.AssetRaised, assetDecimals),
		amountFloat(receipt.Price, assetDecimals),
	)
	if snap.Finalized {
		metrics.Sale().ObserveFinalized()
	}

	id := uuid.NewString()
	if s.store != nil {
		record := &storage.PurchaseRecord{
			ID:          id,
			Buyer:       receipt.Buyer.Hex(),
			AssetAmount: receipt.AssetAmount.String(),
			TokenAmount: receipt.TokenAmount.String(),
			Price:       receipt.Price.String(),
			PurchasedAt: receipt.PurchasedAt,
		}
		if err := s.store.SavePurchase(record); err != nil {
			s.logger.Error("persist purchase failed", "id", id, "error", err)
		}
		s.persistSnapshot(snap)
	}

	s.logger.Info("purchase committed",
		"buyer", receipt.Buyer.Hex(),
		"assetAmount", receipt.AssetAmount.String(),
		"tokenAmount", receipt.TokenAmount.String(),
	)
	writeJSON(w, http.StatusOK, purchaseResponse{
		ID:          id,
		Buyer:       receipt.Buyer.Hex(),
		AssetAmount: formatAmount(receipt.AssetAmount, assetDecimals),
		TokenAmount: formatAmount(receipt.TokenAmount, tokenDecimals),
		Price:       formatAmount(receipt.Price, assetDecimals),
		Finalized:   snap.Finalized,
	})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.decodeCaller(w, r)
	if !ok {
		return
	}
	if err := s.engine.Finalize(caller); err != nil {
		s.observeFailure("finalize", err)
		writeEngineError(w, err)
		return
	}
	metrics.Sale().ObserveFinalized()
	if s.store != nil {
		s.persistSnapshot(s.engine.Snapshot())
	}
	s.logger.Info("sale finalized", "caller", caller.Hex())
	writeJSON(w, http.StatusOK, map[string]bool{"finalized": true})
}

func (s *Server) handleRetryDistribution(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.decodeCaller(w, r)
	if !ok {
		return
	}
	if err := s.engine.RetryDistribution(caller); err != nil {
		s.observeFailure("distribution", err)
		writeEngineError(w, err)
		return
	}
	s.logger.Info("distribution completed", "caller", caller.Hex())
	writeJSON(w, http.StatusOK, map[string]bool{"distributed": true})
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("persistence disabled"))
		return
	}
	var (
		records []storage.PurchaseRecord
		err     error
	)
	if buyer := strings.TrimSpace(r.URL.Query().Get("buyer")); buyer != "" {
		addr, parseErr := types.ParseAddress(buyer)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr)
			return
		}
		records, err = s.store.PurchasesBy(addr.Hex())
	} else {
		records, err = s.store.Purchases(100)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) decodeCaller(w http.ResponseWriter, r *http.Request) (types.Address, bool) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return types.Address{}, false
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return types.Address{}, false
	}
	return caller, true
}

func (s *Server) persistSnapshot(snap *sale.State) {
	record := &storage.SaleSnapshot{
		TokensSold:  snap.TokensSold.String(),
		AssetRaised: snap.AssetRaised.String(),
		Finalized:   snap.Finalized,
	}
	if err := s.store.SaveSnapshot(record); err != nil {
		s.logger.Error("persist snapshot failed", "error", err)
	}
}

func (s *Server) observeFailure(operation string, err error) {
	if errors.Is(err, sale.ErrCollaborator) {
		metrics.Sale().ObserveCollaboratorFailure(operation)
		return
	}
	metrics.Sale().ObserveRejectedMutation(rejectionReason(err))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrSaleFinalized):
		return "finalized"
	case errors.Is(err, sale.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, sale.ErrAmountTooSmall):
		return "amount_too_small"
	case errors.Is(err, sale.ErrSaleExhausted):
		return "exhausted"
	case errors.Is(err, sale.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, sale.ErrBusy):
		return "busy"
	default:
		return "other"
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sale.ErrInvalidAmount), errors.Is(err, sale.ErrAmountTooSmall):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, sale.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, sale.ErrSaleFinalized), errors.Is(err, sale.ErrSaleExhausted),
		errors.Is(err, sale.ErrNoPendingDistribution):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, sale.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, sale.ErrCollaborator):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parseAmount converts a human-readable decimal string into base units.
func parseAmount(raw string, decimals int32) (out *big.Int, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", raw, decimals)
	}
	return shifted.BigInt(), nil
}

func formatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

func amountFloat(v *big.Int, decimals int32) float64 {
	f, _ := decimal.NewFromBigInt(v, -decimals).Float64()
	return f
}
