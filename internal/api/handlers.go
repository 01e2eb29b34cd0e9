package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"procurement-signals/internal/domain"
	"procurement-signals/internal/purchasing"
	"procurement-signals/internal/service"
)

var errPurchasingDisabled = errors.New("purchasing not configured")

type handler struct {
	svc    *service.Service
	logger zerolog.Logger
}

type statusRequest struct {
	Status    string `json:"status"`
	UpdatedBy string `json:"updated_by"`
}

type triggerRequest struct {
	Type     domain.AlertType `json:"type"`
	Material string           `json:"material"`
	Message  string           `json:"message"`
	Severity domain.Severity  `json:"severity"`
}

func (h *handler) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if st, err := h.svc.State(); err == nil {
		body["cycle_id"] = st.CycleID
		body["updated_at"] = st.UpdatedAt
		body["failures"] = len(st.Failures)
	} else {
		body["status"] = "warming_up"
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) recommendations(c *gin.Context) {
	recs, err := h.svc.Recommendations()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func (h *handler) forecast(c *gin.Context) {
	material := c.Param("material")
	curve, err := h.svc.Forecast(material)
	if err != nil {
		h.fail(c, err)
		return
	}
	rec, err := h.svc.Recommendation(material)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"material": rec.Material, "forecast": curve, "recommendation": rec})
}

func (h *handler) vendorRisk(c *gin.Context) {
	risks, err := h.svc.VendorRisks(c.Param("material"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": risks})
}

func (h *handler) insights(c *gin.Context) {
	insight, err := h.svc.Insights(c.Param("material"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insight)
}

func (h *handler) opportunityScore(c *gin.Context) {
	score, err := h.svc.OpportunityScore(c.Param("material"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

func (h *handler) preferredSupplier(c *gin.Context) {
	cmp, err := h.svc.PreferredSupplier(c.Param("material"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *handler) supplierComparisons(c *gin.Context) {
	comparisons, err := h.svc.SupplierComparisons()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparisons": comparisons})
}

func (h *handler) negotiations(c *gin.Context) {
	recs, err := h.svc.NegotiationRecommendations()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"negotiations": recs, "count": len(recs)})
}

func (h *handler) dashboard(c *gin.Context) {
	dash, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (h *handler) listAlerts(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, invalid("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	alerts, err := h.svc.Alerts().Recent(c.Request.Context(), limit, unread)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *handler) alertSummary(c *gin.Context) {
	summary, err := h.svc.Alerts().Summary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) markRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, invalid("alert id must be an integer"))
		return
	}
	if _, err := h.svc.Alerts().MarkAsRead(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "read": true})
}

func (h *handler) markAllRead(c *gin.Context) {
	n, err := h.svc.Alerts().MarkAllAsRead(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *handler) triggerAlert(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid("malformed request body"))
		return
	}
	if req.Type == "" {
		req.Type = domain.AlertManual
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityInfo
	}
	alert, created, err := h.svc.Alerts().CreateAlert(c.Request.Context(), req.Type, req.Material, req.Message, req.Severity)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": true, "alert": alert})
}

// checkAlerts runs every alert check against the current cycle.
func (h *handler) checkAlerts(c *gin.Context) {
	n, err := h.svc.CheckAlerts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": n})
}

func (h *handler) createPurchaseOrder(c *gin.Context) {
	var req purchasing.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid("malformed request body"))
		return
	}
	if strings.TrimSpace(req.Material) == "" {
		h.fail(c, invalid("material is required"))
		return
	}
	po, err := h.svc.RaisePurchaseOrder(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, po)
}

func (h *handler) listPurchaseOrders(c *gin.Context) {
	desk := h.svc.PurchaseOrders()
	if desk == nil {
		h.fail(c, errPurchasingDisabled)
		return
	}
	var status domain.POStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed, err := domain.ParsePOStatus(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		status = parsed
	}
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, invalid("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	orders, err := desk.List(c.Request.Context(), status, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase_orders": orders, "count": len(orders)})
}

func (h *handler) getPurchaseOrder(c *gin.Context) {
	desk := h.svc.PurchaseOrders()
	if desk == nil {
		h.fail(c, errPurchasingDisabled)
		return
	}
	po, err := desk.Get(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func (h *handler) updatePurchaseOrderStatus(c *gin.Context) {
	desk := h.svc.PurchaseOrders()
	if desk == nil {
		h.fail(c, errPurchasingDisabled)
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid("malformed request body"))
		return
	}
	next, err := domain.ParsePOStatus(req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	po, err := desk.UpdateStatus(c.Request.Context(), c.Param("number"), next, req.UpdatedBy)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, po)
}

func (h *handler) fail(c *gin.Context, err error) {
	kind := domain.Kind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("请求处理失败")
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func statusFor(kind string) int {
	switch kind {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "INSUFFICIENT_DATA", "MISSING_SIGNAL":
		return http.StatusUnprocessableEntity
	case "NOT_FOUND":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
}
