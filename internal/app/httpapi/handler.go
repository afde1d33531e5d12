// Package httpapi exposes the ledger services over a REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	app "github.com/domainledger/registry_layer/internal/app"
	fractiondomain "github.com/domainledger/registry_layer/internal/app/domain/fraction"
	oracledomain "github.com/domainledger/registry_layer/internal/app/domain/oracle"
	registrydomain "github.com/domainledger/registry_layer/internal/app/domain/registry"
	treasurydomain "github.com/domainledger/registry_layer/internal/app/domain/treasury"
	"github.com/domainledger/registry_layer/internal/app/metrics"
	registrysvc "github.com/domainledger/registry_layer/internal/app/services/registry"
	"github.com/domainledger/registry_layer/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the core REST API. auth guards the
// administrative endpoints; pass nil to disable them.
func NewHandler(application *app.Application, auth *middleware.AdminAuth) http.Handler {
	h := &handler{app: application}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/domains", func(r chi.Router) {
		r.Post("/", h.registerDomain)
		r.Post("/token", h.registerDomainWithToken)
		r.Post("/batch", h.batchRegister)
		r.Post("/batch-renew", h.batchRenew)
		r.Get("/expiring", h.listExpiring)

		r.Route("/{fullDomain}", func(r chi.Router) {
			r.Get("/", h.getDomain)
			r.Get("/availability", h.availability)
			r.Post("/renew", h.renewDomain)
			r.Post("/transfer", h.transferDomain)
		})
	})

	r.Get("/owners/{owner}/domains", h.ownerDomains)

	r.Route("/prices", func(r chi.Router) {
		r.Get("/", h.listPrices)
		r.Get("/{suffix}/quote", h.quotePrice)
		if auth != nil {
			r.With(auth.Handler).Put("/{suffix}", h.setPrice)
		}
	})

	r.Route("/oracle", func(r chi.Router) {
		r.Get("/rate", h.exchangeRate)
		r.Post("/convert", h.convert)
		if auth != nil {
			r.With(auth.Handler).Put("/fallback", h.setFallbackRate)
		}
	})

	r.Route("/treasury/{fullDomain}", func(r chi.Router) {
		r.Get("/balance", h.treasuryBalance)
		r.Get("/fee", h.treasuryFee)
		r.Post("/fee-bps", h.setFeeBps)
		r.Get("/can-auto-renew", h.canAutoRenew)
		r.Post("/auto-renew", h.autoRenew)
		r.Post("/withdraw", h.withdraw)
	})

	r.Route("/fractions/{fullDomain}", func(r chi.Router) {
		r.Get("/", h.getFraction)
		r.Post("/enable", h.enableFraction)
		r.Post("/purchase", h.purchaseShares)
		r.Post("/unlock", h.unlockShares)
		r.Post("/default", h.triggerDefault)
		r.Post("/transfer", h.transferShares)
		r.Get("/majority", h.majorityOwner)
		r.Get("/holders/{holder}", h.shareBalance)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- registry -----------------------------------------------------------

func (h *handler) registerDomain(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller  string `json:"caller"`
		Name    string `json:"name"`
		Suffix  string `json:"suffix"`
		Years   int    `json:"years"`
		Payment string `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(payload.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := h.app.Registry.Register(r.Context(), payload.Caller, payload.Name, payload.Suffix, payload.Years, payment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, receiptJSON(receipt))
}

func (h *handler) registerDomainWithToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
		Name   string `json:"name"`
		Suffix string `json:"suffix"`
		Years  int    `json:"years"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := h.app.Registry.RegisterWithToken(r.Context(), payload.Caller, payload.Name, payload.Suffix, payload.Years)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, receiptJSON(receipt))
}

func (h *handler) batchRegister(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.app.Registry.BatchRegister)
}

func (h *handler) batchRenew(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.app.Registry.BatchRenew)
}

type batchOp func(ctx context.Context, caller string, items []registrysvc.BatchItem, payment *big.Int) (registrysvc.BatchReceipt, error)

func (h *handler) batch(w http.ResponseWriter, r *http.Request, op batchOp) {
	var payload struct {
		Caller  string `json:"caller"`
		Payment string `json:"payment"`
		Items   []struct {
			Name   string `json:"name"`
			Suffix string `json:"suffix"`
			Years  int    `json:"years"`
		} `json:"items"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(payload.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items := make([]registrysvc.BatchItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, registrysvc.BatchItem{Name: item.Name, Suffix: item.Suffix, Years: item.Years})
	}

	receipt, err := op(r.Context(), payload.Caller, items, payment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	receipts := make([]map[string]any, 0, len(receipt.Receipts))
	for _, rc := range receipt.Receipts {
		receipts = append(receipts, receiptJSON(rc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipts":    receipts,
		"total_price": receipt.TotalPrice.String(),
		"total_fee":   receipt.TotalFee.String(),
		"refund":      receipt.Refund.String(),
	})
}

func (h *handler) getDomain(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Registry.GetDomain(r.Context(), chi.URLParam(r, "fullDomain"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec))
}

func (h *handler) availability(w http.ResponseWriter, r *http.Request) {
	available, err := h.app.Registry.IsAvailable(r.Context(), chi.URLParam(r, "fullDomain"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (h *handler) renewDomain(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller  string `json:"caller"`
		Years   int    `json:"years"`
		Payment string `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(payload.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name, suffix, ok := registrydomain.SplitFullDomain(chi.URLParam(r, "fullDomain"))
	if !ok {
		writeError(w, http.StatusBadRequest, registrydomain.ErrInvalidName)
		return
	}

	receipt, err := h.app.Registry.Renew(r.Context(), payload.Caller, name, suffix, payload.Years, payment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

func (h *handler) transferDomain(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller   string `json:"caller"`
		NewOwner string `json:"new_owner"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Registry.TransferOwnership(r.Context(), payload.Caller, chi.URLParam(r, "fullDomain"), payload.NewOwner); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ownerDomains(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	var (
		names []string
		err   error
	)
	if limit > 0 {
		names, err = h.app.Registry.GetOwnerDomainsPage(r.Context(), chi.URLParam(r, "owner"), offset, limit)
	} else {
		names, err = h.app.Registry.GetOwnerDomains(r.Context(), chi.URLParam(r, "owner"))
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": names})
}

func (h *handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	within, err := time.ParseDuration(r.URL.Query().Get("within"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("within must be a duration: %w", err))
		return
	}

	records, err := h.app.Registry.ListExpiring(r.Context(), nil, within)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": out})
}

func (h *handler) listPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.app.Registry.ListSuffixPrices(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make(map[string]string, len(prices))
	for suffix, price := range prices {
		out[suffix] = price.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}

func (h *handler) quotePrice(w http.ResponseWriter, r *http.Request) {
	years := queryInt(r, "years", 1)
	price, err := h.app.Registry.RenewalPrice(r.Context(), chi.URLParam(r, "suffix"), years)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

func (h *handler) setPrice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PerYear string `json:"per_year"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	perYear, err := parseAmount(payload.PerYear)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing credentials"))
		return
	}

	if err := h.app.Registry.SetSuffixPrice(r.Context(), claims.Address, chi.URLParam(r, "suffix"), perYear); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- oracle -------------------------------------------------------------

func (h *handler) exchangeRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.app.Oracle.CurrentExchangeRate(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rate":   rate.Value.String(),
		"as_of":  rate.AsOf,
		"source": rate.Source,
	})
}

func (h *handler) convert(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	converted, err := h.app.Oracle.ConvertBaseToSecondary(r.Context(), amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"converted": converted.String()})
}

func (h *handler) setFallbackRate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rate string `json:"rate"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate, err := decimal.NewFromString(payload.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid rate: %w", err))
		return
	}
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing credentials"))
		return
	}

	if err := h.app.Oracle.SetFallbackRate(r.Context(), claims.Address, rate); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- treasury -----------------------------------------------------------

func (h *handler) treasuryBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.app.Treasury.Balance(r.Context(), chi.URLParam(r, "fullDomain"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (h *handler) treasuryFee(w http.ResponseWriter, r *http.Request) {
	payment, err := parseAmount(r.URL.Query().Get("payment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fee, err := h.app.Treasury.CalculateFee(r.Context(), chi.URLParam(r, "fullDomain"), payment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"fee": fee.String()})
}

func (h *handler) setFeeBps(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
		Bps    int    `json:"bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Treasury.SetDomainFeeBps(r.Context(), payload.Caller, chi.URLParam(r, "fullDomain"), payload.Bps); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) canAutoRenew(w http.ResponseWriter, r *http.Request) {
	name, suffix, ok := registrydomain.SplitFullDomain(chi.URLParam(r, "fullDomain"))
	if !ok {
		writeError(w, http.StatusBadRequest, registrydomain.ErrInvalidName)
		return
	}
	years := queryInt(r, "years", 1)

	renewable, err := h.app.Treasury.CanAutoRenew(r.Context(), name, suffix, years)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_auto_renew": renewable})
}

func (h *handler) autoRenew(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
		Years  int    `json:"years"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name, suffix, ok := registrydomain.SplitFullDomain(chi.URLParam(r, "fullDomain"))
	if !ok {
		writeError(w, http.StatusBadRequest, registrydomain.ErrInvalidName)
		return
	}

	if err := h.app.Treasury.AutoRenew(r.Context(), payload.Caller, name, suffix, payload.Years); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Treasury.WithdrawExcess(r.Context(), payload.Caller, chi.URLParam(r, "fullDomain"), amount); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- fractionalization --------------------------------------------------

func (h *handler) getFraction(w http.ResponseWriter, r *http.Request) {
	frec, err := h.app.Fraction.GetFraction(r.Context(), chi.URLParam(r, "fullDomain"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fractionJSON(frec))
}

func (h *handler) enableFraction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller        string `json:"caller"`
		PricePerShare string `json:"price_per_share"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount(payload.PricePerShare)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	frec, err := h.app.Fraction.Enable(r.Context(), payload.Caller, chi.URLParam(r, "fullDomain"), price)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, fractionJSON(frec))
}

func (h *handler) purchaseShares(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller  string `json:"caller"`
		Amount  string `json:"amount"`
		Payment string `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(payload.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := h.app.Fraction.PurchasePublicShares(r.Context(), payload.Caller, chi.URLParam(r, "fullDomain"), amount, payment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"full_domain": receipt.FullDomain,
		"holder":      receipt.Holder,
		"shares":      receipt.Shares.String(),
		"cost":        receipt.Cost.String(),
		"refund":      receipt.Refund.String(),
	})
}

func (h *handler) unlockShares(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Fraction.UnlockOwnerTokens(r.Context(), chi.URLParam(r, "fullDomain")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) triggerDefault(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Fraction.TriggerDefaultTransfer(r.Context(), chi.URLParam(r, "fullDomain")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) transferShares(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller string `json:"caller"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Fraction.Token().Transfer(r.Context(), chi.URLParam(r, "fullDomain"), payload.Caller, payload.To, amount); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) majorityOwner(w http.ResponseWriter, r *http.Request) {
	holder, err := h.app.Fraction.GetMajorityOwner(r.Context(), chi.URLParam(r, "fullDomain"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"majority_owner": holder})
}

func (h *handler) shareBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.app.Fraction.ShareBalance(r.Context(), chi.URLParam(r, "fullDomain"), chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

// --- helpers ------------------------------------------------------------

func recordJSON(rec registrydomain.Record) map[string]any {
	return map[string]any{
		"full_domain":     rec.FullDomain(),
		"owner":           rec.Owner,
		"registered_at":   rec.RegisteredAt,
		"expires_at":      rec.ExpiresAt,
		"years_purchased": rec.YearsPurchased,
	}
}

func receiptJSON(receipt registrysvc.Receipt) map[string]any {
	out := map[string]any{
		"full_domain": receipt.FullDomain,
		"owner":       receipt.Owner,
		"years":       receipt.Years,
		"price":       receipt.Price.String(),
		"fee":         receipt.Fee.String(),
		"expires_at":  receipt.ExpiresAt,
	}
	if receipt.Refund != nil {
		out["refund"] = receipt.Refund.String()
	}
	return out
}

func fractionJSON(frec fractiondomain.Record) map[string]any {
	return map[string]any{
		"full_domain":     frec.FullDomain,
		"token_id":        frec.TokenID,
		"domain_owner":    frec.DomainOwner,
		"unlock_time":     frec.UnlockTime,
		"status":          frec.Status,
		"unlocked":        frec.Unlocked,
		"price_per_share": frec.PricePerShare.String(),
		"public_sold":     frec.PublicSold.String(),
	}
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return fallback
	}
	return v
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps service errors to HTTP statuses by kind: not-found 404,
// authorization 403, conflicts 409, oracle unavailability 503, everything
// validation-shaped 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registrydomain.ErrDomainNotFound),
		errors.Is(err, fractiondomain.ErrNotEnabled):
		return http.StatusNotFound

	case errors.Is(err, registrydomain.ErrNotOwner),
		errors.Is(err, registrydomain.ErrNotAdmin),
		errors.Is(err, registrydomain.ErrNotTreasury),
		errors.Is(err, registrydomain.ErrNotFraction),
		errors.Is(err, treasurydomain.ErrNotRegistry),
		errors.Is(err, treasurydomain.ErrNotOwner),
		errors.Is(err, fractiondomain.ErrNotOwner),
		errors.Is(err, oracledomain.ErrNotAdmin):
		return http.StatusForbidden

	case errors.Is(err, registrydomain.ErrDomainTaken),
		errors.Is(err, fractiondomain.ErrAlreadyEnabled),
		errors.Is(err, fractiondomain.ErrDefaulted):
		return http.StatusConflict

	case errors.Is(err, oracledomain.ErrPriceUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusBadRequest
	}
}
