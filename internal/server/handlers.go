package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
	"github.com/RyanBruno/arb-gnucash-importer/internal/prices"
	"github.com/RyanBruno/arb-gnucash-importer/internal/storage"
)

// Handlers contains all dependencies for API endpoint handlers.
type Handlers struct {
	Store   storage.EntryStore // ledger entry store
	Prices  *prices.Service    // daily price lookup (optional)
	DevMode bool               // detailed error responses in development
	Logger  *logrus.Logger
}

func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health returns a simple health check.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// RecentEntries returns the most recently imported ledger entries.
// Accepts a limit query parameter (default 100, range 1-500).
func (h *Handlers) RecentEntries(c echo.Context) error {
	limitStr := c.QueryParam("limit")
	limit := 100
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 500 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 500"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Store.RecentEntries(ctx, limit)
	if err != nil {
		h.Logger.WithError(err).Error("failed to read entries")
		return h.err(c, http.StatusInternalServerError, "failed to get entries", nil)
	}
	return c.JSON(http.StatusOK, EntriesResponse{Items: items})
}

// DailyPrice returns the cached USD close price for a token contract (or
// ETH when the contract segment is "eth") on a given date.
func (h *Handlers) DailyPrice(c echo.Context) error {
	if h.Prices == nil {
		return h.err(c, http.StatusBadRequest, "prices are not configured", nil)
	}

	contract := models.NormalizeAddress(c.Param("contract"))
	if contract == "eth" {
		contract = ""
	} else if !models.IsHexAddress(contract) {
		return h.err(c, http.StatusBadRequest, "invalid contract", map[string]any{"contract": "expected 0x hex address or eth"})
	}

	dateStr := c.QueryParam("date")
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid date", map[string]any{"date": "expected YYYY-MM-DD"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	price, err := h.Prices.Daily(ctx, contract, day)
	if err != nil {
		h.Logger.WithError(err).Error("failed to resolve price")
		return h.err(c, http.StatusInternalServerError, "failed to get price", nil)
	}

	return c.JSON(http.StatusOK, PriceResponse{
		Contract: contract,
		Date:     day.Format("2006-01-02"),
		Price:    price.String(),
	})
}
