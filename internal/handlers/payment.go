package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/itbhushan/payform/internal/models"
	"github.com/itbhushan/payform/internal/services"
)

// PaymentHandler confirms payments when the gateway sends the purchaser back.
type PaymentHandler struct {
	reconciler *services.ReconcileService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(reconciler *services.ReconcileService) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

type verifyRequest struct {
	OrderID         string `json:"order_id" form:"order_id" query:"order_id"`
	RazorpayOrderID string `json:"razorpay_order_id" form:"razorpay_order_id" query:"razorpay_order_id"`
	SessionID       string `json:"session_id" form:"session_id" query:"session_id"`
	FormID          string `json:"form_id" form:"form_id" query:"form_id"`
	Email           string `json:"email" form:"email" query:"email"`
}

func (r verifyRequest) orderID() string {
	for _, id := range []string{r.OrderID, r.RazorpayOrderID, r.SessionID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

// Verify reconciles the order named in the return URL and renders the result
// as an HTML page, or JSON for clients that ask for it.
func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	wantsJSON := c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON

	var req verifyRequest
	if err := c.QueryParser(&req); err != nil {
		return h.fail(c, wantsJSON, fiber.NewError(fiber.StatusBadRequest, "invalid query"))
	}
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return h.fail(c, wantsJSON, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
		}
	}

	orderID := req.orderID()
	if orderID == "" {
		return h.fail(c, wantsJSON, fiber.NewError(fiber.StatusBadRequest, "order_id is required"))
	}

	reconcileReq := services.ReconcileRequest{
		Gateway:        c.Params("gateway"),
		GatewayOrderID: orderID,
		Email:          strings.TrimSpace(req.Email),
	}
	if req.FormID != "" {
		formID, err := uuid.Parse(req.FormID)
		if err != nil {
			return h.fail(c, wantsJSON, fiber.NewError(fiber.StatusBadRequest, "invalid form_id"))
		}
		reconcileReq.FormID = &formID
	}

	res, err := h.reconciler.Reconcile(c.UserContext(), reconcileReq)
	if err != nil {
		var retry *services.RetryScheduledError
		if errors.As(err, &retry) {
			return h.retryLater(c, wantsJSON, retry)
		}
		return h.fail(c, wantsJSON, serviceError(err))
	}

	if wantsJSON {
		data := fiber.Map{
			"outcome":        res.Outcome,
			"gateway_status": res.GatewayStatus,
		}
		if txn := res.Transaction; txn != nil {
			data["transaction"] = fiber.Map{
				"id":                  txn.ID,
				"order_reference":     txn.OrderReference,
				"status":              txn.Status,
				"payment_amount":      txn.PaymentAmount.StringFixed(2),
				"gateway_fee":         txn.GatewayFee.StringFixed(2),
				"platform_commission": txn.PlatformCommission.StringFixed(2),
				"net_amount_to_admin": txn.NetAmountToAdmin.StringFixed(2),
				"currency":            txn.Currency,
			}
		}
		return c.JSON(fiber.Map{"success": true, "data": data})
	}

	if res.Outcome == services.OutcomeNotPaid {
		return renderPage(c, fiber.StatusOK, page{
			Title:   "Payment pending",
			Heading: "Payment not completed",
			Message: "The payment gateway has not confirmed this payment yet (status: " + res.GatewayStatus + "). If you were charged, this page will update once the gateway confirms.",
			Tone:    "wait",
		})
	}

	return renderPage(c, fiber.StatusOK, page{
		Title:   "Payment confirmed",
		Heading: "Payment successful",
		Message: "Thank you! Your payment has been received.",
		Tone:    "ok",
		Rows:    receiptRows(res.Transaction),
	})
}

// Cancelled is the page a purchaser lands on after backing out of checkout.
func (h *PaymentHandler) Cancelled(c *fiber.Ctx) error {
	return renderPage(c, fiber.StatusOK, page{
		Title:   "Payment cancelled",
		Heading: "Payment cancelled",
		Message: "You left the checkout before paying and nothing was charged. Submit the form again to retry.",
		Tone:    "fail",
	})
}

func receiptRows(txn *models.Transaction) []pageRow {
	if txn == nil {
		return nil
	}
	rows := []pageRow{{Label: "Order", Value: txn.OrderReference}}
	if txn.Form != nil && txn.Form.Title != "" {
		rows = append(rows, pageRow{Label: "Form", Value: txn.Form.Title})
	}
	if txn.ProductName != "" {
		rows = append(rows, pageRow{Label: "Item", Value: txn.ProductName})
	}
	return append(rows,
		pageRow{Label: "Amount paid", Value: services.FormatINR(txn.PaymentAmount)},
		pageRow{Label: "Gateway fee", Value: services.FormatINR(txn.GatewayFee)},
		pageRow{Label: "Platform commission", Value: services.FormatINR(txn.PlatformCommission)},
		pageRow{Label: "Received by organiser", Value: services.FormatINR(txn.NetAmountToAdmin)},
	)
}

func (h *PaymentHandler) retryLater(c *fiber.Ctx, wantsJSON bool, retry *services.RetryScheduledError) error {
	seconds := int(retry.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))

	if wantsJSON {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"outcome": "retry_scheduled",
			"error":   "payment is being confirmed, retry later",
		})
	}
	return renderPage(c, fiber.StatusServiceUnavailable, page{
		Title:   "Confirming payment",
		Heading: "We are confirming your payment",
		Message: "Your payment is being recorded. Please refresh this page in a few minutes; you do not need to pay again.",
		Tone:    "wait",
	})
}

func (h *PaymentHandler) fail(c *fiber.Ctx, wantsJSON bool, err error) error {
	if wantsJSON {
		return err
	}

	code := fiber.StatusInternalServerError
	message := "Something went wrong while confirming your payment. Please contact the form owner."
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
		}
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("payment verification failed")
	}

	return renderPage(c, code, page{
		Title:   "Payment error",
		Heading: "We could not confirm this payment",
		Message: message,
		Tone:    "fail",
	})
}
