package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/receivables-portal/internal/application/service"
	"github.com/garyjia/receivables-portal/internal/application/workflow"
	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/terms"
	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// HealthFunc reports component health for /health
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// Dependencies are the application services the handlers call
type Dependencies struct {
	Engine        workflow.Engine
	Queries       service.QueryService
	Notifications service.NotificationService
	Activity      service.ActivityService
	Exports       service.ExportService
	Health        HealthFunc
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SubmitBillRequest is the body of POST /api/bills. Dates are YYYY-MM-DD or RFC 3339.
type SubmitBillRequest struct {
	MDAID         string          `json:"mda_id" binding:"required"`
	InvoiceNumber string          `json:"invoice_number" binding:"required"`
	InvoiceDate   string          `json:"invoice_date" binding:"required"`
	DueDate       string          `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
}

// TransitionRequest is the body of POST /api/bills/:id/transitions
type TransitionRequest struct {
	Trigger domainwf.Trigger `json:"trigger" binding:"required"`
	Payload workflow.Payload `json:"payload"`
}

// SchedulePreviewRequest is the body of POST /api/schedule/preview
type SchedulePreviewRequest struct {
	Principal     decimal.Decimal         `json:"principal"`
	Quarters      int                     `json:"quarters"`
	StartQuarter  string                  `json:"start_quarter" binding:"required"`
	AnnualRate    decimal.Decimal         `json:"annual_rate"`
	RateOverrides map[int]decimal.Decimal `json:"rate_overrides"`
}

// SchedulePreviewResponse is a computed schedule with totals
type SchedulePreviewResponse struct {
	Terms         []entity.PaymentTerm `json:"terms"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	TotalInterest decimal.Decimal      `json:"total_interest"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	var details interface{}
	healthy := true
	if h.deps.Health != nil {
		healthy, details = h.deps.Health(c.Request.Context())
	}

	status, label := http.StatusOK, "healthy"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "degraded"
	}

	c.JSON(status, Response{
		Success: healthy,
		Data: gin.H{
			"status":     label,
			"timestamp":  h.now().Format(time.RFC3339),
			"components": details,
		},
	})
}

// SubmitBill handles POST /api/bills
func (h *Handlers) SubmitBill(c *gin.Context) {
	var req SubmitBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "validation_error")
		return
	}

	invoiceDate, err := parseDate(req.InvoiceDate)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid invoice_date", "validation_error")
		return
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		d, err := parseDate(req.DueDate)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, "invalid due_date", "validation_error")
			return
		}
		dueDate = &d
	}

	bill, err := h.deps.Engine.Submit(c.Request.Context(), workflow.SubmitRequest{
		Actor:         actorFrom(c),
		MDAID:         req.MDAID,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
	})
	if err != nil {
		h.respondError(c, "submit", err)
		return
	}
	ok(c, http.StatusCreated, bill)
}

// FireTransition handles POST /api/bills/:id/transitions
func (h *Handlers) FireTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "validation_error")
		return
	}

	bill, err := h.deps.Engine.Fire(c.Request.Context(), workflow.Command{
		BillID:  c.Param("id"),
		Trigger: domainwf.Trigger(strings.ToUpper(string(req.Trigger))),
		Actor:   actorFrom(c),
		Payload: req.Payload,
	})
	if err != nil {
		h.respondError(c, "fire", err)
		return
	}
	ok(c, http.StatusOK, bill)
}

// GetBill handles GET /api/bills/:id
func (h *Handlers) GetBill(c *gin.Context) {
	bill, err := h.deps.Engine.GetBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get bill", err)
		return
	}
	ok(c, http.StatusOK, bill)
}

// PermittedTriggers handles GET /api/bills/:id/triggers
func (h *Handlers) PermittedTriggers(c *gin.Context) {
	triggers, err := h.deps.Engine.PermittedTriggers(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.respondError(c, "permitted triggers", err)
		return
	}
	if triggers == nil {
		triggers = []domainwf.Trigger{}
	}
	ok(c, http.StatusOK, triggers)
}

// BillActivity handles GET /api/bills/:id/activity
func (h *Handlers) BillActivity(c *gin.Context) {
	entries, err := h.deps.Activity.ListByBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "activity", err)
		return
	}
	if entries == nil {
		entries = []*entity.ActivityLogEntry{}
	}
	ok(c, http.StatusOK, entries)
}

// ListBills handles GET /api/bills and GET /api/views/:view.
// Without a view the actor's role inbox is returned.
func (h *Handlers) ListBills(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	bills, err := h.deps.Queries.View(c.Request.Context(), c.Param("view"), actorFrom(c), page)
	if err != nil {
		h.respondError(c, "list bills", err)
		return
	}
	if bills == nil {
		bills = []*entity.Bill{}
	}
	ok(c, http.StatusOK, bills)
}

// Dashboard handles GET /api/dashboard
func (h *Handlers) Dashboard(c *gin.Context) {
	dashboard, err := h.deps.Queries.Dashboard(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, "dashboard", err)
		return
	}
	ok(c, http.StatusOK, dashboard)
}

// ListNotifications handles GET /api/notifications?unread=true&limit=n
func (h *Handlers) ListNotifications(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	notifications, err := h.deps.Notifications.List(c.Request.Context(), actorFrom(c), unreadOnly, page.Limit)
	if err != nil {
		h.respondError(c, "list notifications", err)
		return
	}
	if notifications == nil {
		notifications = []*entity.Notification{}
	}
	ok(c, http.StatusOK, notifications)
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	if err := h.deps.Notifications.MarkRead(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.respondError(c, "mark read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PreviewSchedule handles POST /api/schedule/preview. No bill is touched.
func (h *Handlers) PreviewSchedule(c *gin.Context) {
	var req SchedulePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "validation_error")
		return
	}

	schedule, err := terms.Calculate(terms.Input{
		Principal:     req.Principal,
		Quarters:      req.Quarters,
		StartQuarter:  req.StartQuarter,
		AnnualRate:    req.AnnualRate,
		RateOverrides: req.RateOverrides,
	})
	if err != nil {
		h.respondError(c, "preview schedule", err)
		return
	}
	ok(c, http.StatusOK, SchedulePreviewResponse{
		Terms:         schedule,
		TotalAmount:   terms.Total(schedule),
		TotalInterest: terms.TotalInterest(schedule),
	})
}

// ExportSchedule handles GET /api/bills/:id/schedule.xlsx
func (h *Handlers) ExportSchedule(c *gin.Context) {
	export, err := h.deps.Exports.PaymentSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "export schedule", err)
		return
	}
	sendWorkbook(c, export)
}

// ExportCertifiedRegister handles GET /api/exports/certified-register.xlsx
func (h *Handlers) ExportCertifiedRegister(c *gin.Context) {
	export, err := h.deps.Exports.CertifiedRegister(c.Request.Context())
	if err != nil {
		h.respondError(c, "export register", err)
		return
	}
	sendWorkbook(c, export)
}

func sendWorkbook(c *gin.Context, export *service.Export) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	c.Data(http.StatusOK, xlsxContentType, export.Content)
}

func parsePage(c *gin.Context) (service.Page, error) {
	page := service.Page{Limit: defaultPageSize}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, fmt.Errorf("invalid limit %q", raw)
		}
		if n > 0 {
			page.Limit = n
		}
	}
	if page.Limit > maxPageSize {
		page.Limit = maxPageSize
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, fmt.Errorf("invalid offset %q", raw)
		}
		page.Offset = n
	}
	return page, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
