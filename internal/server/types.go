package server

import "github.com/RyanBruno/arb-gnucash-importer/internal/models"

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// EntriesResponse wraps a page of ledger entries.
type EntriesResponse struct {
	Items []models.LedgerEntry `json:"items"`
}

// PriceResponse is the daily price lookup payload.
type PriceResponse struct {
	Contract string `json:"contract,omitempty"`
	Date     string `json:"date"`
	Price    string `json:"price"`
}
