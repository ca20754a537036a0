package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"goflare.io/storecredit"
	"goflare.io/storecredit/models/enum"
)

// AuditHandler exposes the correlation mirror, the redemption ledger and the
// dead-letter log to operators.
type AuditHandler interface {
	GetCorrelation(c echo.Context) error
	ListCorrelations(c echo.Context) error
	GetRedemption(c echo.Context) error
	ListDeadLetters(c echo.Context) error
	ResolveDeadLetter(c echo.Context) error
}

type auditHandler struct {
	Credit storecredit.Credit
	logger *zap.Logger
}

func NewAuditHandler(
	Credit storecredit.Credit,
	logger *zap.Logger,
) AuditHandler {
	return &auditHandler{
		Credit: Credit,
		logger: logger,
	}
}

// GetCorrelation handles GET /correlations/:code
func (ah *auditHandler) GetCorrelation(c echo.Context) error {
	correlation, err := ah.Credit.GetCorrelation(c.Request().Context(), c.Param("code"))
	if err != nil {
		return respondError(c, ah.logger, err)
	}

	return c.JSON(http.StatusOK, correlation)
}

// ListCorrelations handles GET /customers/:customerId/correlations
func (ah *auditHandler) ListCorrelations(c echo.Context) error {
	correlations, err := ah.Credit.ListCorrelations(c.Request().Context(), c.Param("customerId"))
	if err != nil {
		return respondError(c, ah.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    correlations,
		"count":   len(correlations),
	})
}

// GetRedemption handles GET /redemptions/:orderRef
func (ah *auditHandler) GetRedemption(c echo.Context) error {
	redemption, err := ah.Credit.GetRedemption(c.Request().Context(), c.Param("orderRef"))
	if err != nil {
		return respondError(c, ah.logger, err)
	}

	return c.JSON(http.StatusOK, redemption)
}

// ListDeadLetters handles GET /dead-letters?status=OPEN&limit=50&offset=0
func (ah *auditHandler) ListDeadLetters(c echo.Context) error {
	var (
		status        string
		limit, offset uint64
	)
	if err := echo.QueryParamsBinder(c).
		String("status", &status).
		Uint64("limit", &limit).
		Uint64("offset", &offset).
		BindError(); err != nil {
		return badRequest(c, "Invalid query parameters")
	}

	switch enum.DeadLetterStatus(status) {
	case "", enum.DeadLetterStatusOpen, enum.DeadLetterStatusResolved:
	default:
		return badRequest(c, "status must be OPEN or RESOLVED")
	}

	entries, err := ah.Credit.ListDeadLetters(c.Request().Context(), enum.DeadLetterStatus(status), limit, offset)
	if err != nil {
		return respondError(c, ah.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}

type resolveDeadLetterRequest struct {
	Note string `json:"note"`
}

// ResolveDeadLetter handles POST /dead-letters/:id/resolve
func (ah *auditHandler) ResolveDeadLetter(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return badRequest(c, "Invalid dead letter id")
	}

	var req resolveDeadLetterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	entry, err := ah.Credit.ResolveDeadLetter(c.Request().Context(), id, req.Note)
	if err != nil {
		return respondError(c, ah.logger, err)
	}

	return c.JSON(http.StatusOK, entry)
}
