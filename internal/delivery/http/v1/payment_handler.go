package v1

import (
	"fmt"
	"net/http"
	"time"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/internal/domain"
	"go-marketplace-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentUC domain.PaymentUsecase
}

func NewPaymentHandler(protected *gin.RouterGroup, paymentUC domain.PaymentUsecase) {
	handler := &PaymentHandler{paymentUC: paymentUC}

	p := protected.Group("/payments")
	{
		p.GET("", handler.List)
		p.GET("/summary", handler.Summary)
		p.GET("/export", handler.Export)
	}
}

// List godoc
// @Summary      List payments
// @Description  Own payments. Admins may pass user_id or omit it to list everyone's.
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Param        user_id    query     string  false  "User (admin only)"
// @Param        type       query     string  false  "incoming, outgoing, withdrawal, refund"
// @Param        status     query     string  false  "pending, completed, failed, processing"
// @Param        page       query     int     false  "Page number"
// @Param        page_size  query     int     false  "Items per page"
// @Success      200        {object}  response.Response
// @Router       /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	var filter domain.PaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(apperror.BadRequest("Invalid query parameters"))
		return
	}

	result, err := h.paymentUC.List(c, filter)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Payments", result)
}

// Summary godoc
// @Summary      Payment totals
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=domain.PaymentSummary}
// @Router       /payments/summary [get]
func (h *PaymentHandler) Summary(c *gin.Context) {
	summary, err := h.paymentUC.Summary(c, callerID(c))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Payment summary", summary)
}

// Export godoc
// @Summary      Export payments
// @Description  xlsx workbook of the caller's payments; Arabic workbooks are right-to-left.
// @Tags         payments
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        lang  query  string  false  "ar or en"
// @Success      200
// @Router       /payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	data, err := h.paymentUC.Export(c, callerID(c), requestLanguage(c))
	if err != nil {
		c.Error(err)
		return
	}

	filename := fmt.Sprintf("payments_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
