package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"invoicekit/internal/account"
	"invoicekit/internal/numbering"
	"invoicekit/internal/payment"
	"invoicekit/internal/totals"
	"invoicekit/pkg/models"
)

type deriveRequest struct {
	Account string `json:"account"`
}

type deriveResponse struct {
	IBAN     string `json:"iban"`
	Display  string `json:"display"`
	BankCode string `json:"bank_code"`
	BankName string `json:"bank_name,omitempty"`
	Swift    string `json:"swift,omitempty"`
}

type validateRequest struct {
	IBAN string `json:"iban"`
}

type validateResponse struct {
	IBAN  string `json:"iban"`
	Valid bool   `json:"valid"`
}

type totalsRequest struct {
	Lines    []models.LineItem `json:"lines"`
	VatPayer bool              `json:"vat_payer"`
}

type payloadRequest struct {
	IBAN           string          `json:"iban"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	VariableSymbol string          `json:"variable_symbol"`
	ConstantSymbol string          `json:"constant_symbol"`
	Message        string          `json:"message"`
}

type payloadResponse struct {
	Payload string           `json:"payload"`
	Fields  *payment.Payload `json:"fields"`
}

type numberResponse struct {
	Kind    models.Kind `json:"kind"`
	Number  string      `json:"number,omitempty"`
	Display string      `json:"display,omitempty"`
}

type numbersResponse struct {
	Counters     numbering.State        `json:"counters"`
	Reservations map[models.Kind]string `json:"reservations"`
}

func (h *Handler) deriveIban(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := account.ParseAccount(req.Account)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	iban, err := account.DeriveIban(req.Account)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := deriveResponse{
		IBAN:     iban,
		Display:  account.FormatIban(iban),
		BankCode: acc.BankCode,
	}
	if bank, ok := h.Banks.Lookup(acc.BankCode); ok {
		resp.BankName = bank.Name
		resp.Swift = bank.Swift
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) validateIban(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		IBAN:  account.NormalizeIban(req.IBAN),
		Valid: account.ValidateIban(req.IBAN),
	})
}

func (h *Handler) computeTotals(w http.ResponseWriter, r *http.Request) {
	var req totalsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, totals.Compute(req.Lines, req.VatPayer))
}

func (h *Handler) buildPayload(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := payment.Build(payment.Request{
		IBAN:           req.IBAN,
		Amount:         req.Amount,
		Currency:       req.Currency,
		VariableSymbol: req.VariableSymbol,
		ConstantSymbol: req.ConstantSymbol,
		Message:        req.Message,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payloadResponse{Payload: p.String(), Fields: p})
}

func (h *Handler) kindParam(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_kind", err.Error())
		return "", false
	}
	return kind, true
}

func (h *Handler) listNumbers(w http.ResponseWriter, r *http.Request) {
	resp := numbersResponse{
		Counters:     h.Numbers.Snapshot(),
		Reservations: make(map[models.Kind]string),
	}
	for _, kind := range models.Kinds {
		if number, ok := h.Numbers.Reservation(kind); ok {
			resp.Reservations[kind] = number
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reserveNumber(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	number, err := h.Numbers.Reserve(kind)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, numberResponse{Kind: kind, Number: number, Display: kind.Tag() + "-" + number})
}

func (h *Handler) commitNumber(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	number, err := h.Numbers.Commit(kind)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := numberResponse{Kind: kind, Number: number}
	if number != "" {
		resp.Display = kind.Tag() + "-" + number
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) abandonNumber(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	h.Numbers.Abandon(kind)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBanks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Banks.All())
}

func (h *Handler) getBank(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	bank, ok := h.Banks.Lookup(code)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown bank code "+code)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

func (h *Handler) lookupRegistry(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeError(w, r, http.StatusNotImplemented, "not_configured", "registry lookup is not configured")
		return
	}

	ico := chi.URLParam(r, "ico")
	res, err := h.Registry.Lookup(r.Context(), ico)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "registry_unavailable", err.Error())
		return
	}
	if !res.Found() {
		writeError(w, r, http.StatusNotFound, "not_found", "no subject with IČO "+ico)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) issueDocument(w http.ResponseWriter, r *http.Request) {
	if h.Documents == nil {
		writeError(w, r, http.StatusNotImplemented, "not_configured", "document issuing is not configured")
		return
	}

	var doc models.Document
	if !decodeJSON(w, r, &doc) {
		return
	}

	res, err := h.Documents.Issue(r.Context(), &doc)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
