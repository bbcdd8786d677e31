package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/config"
	"github.com/itbhushan/payform/internal/handlers"
	"github.com/itbhushan/payform/internal/middleware"
	"github.com/itbhushan/payform/internal/services"
)

// Services are the long-lived domain services shared by the handlers.
type Services struct {
	Orders     *services.OrderService
	Reconciler *services.ReconcileService
	Accounts   *services.AccountService
	Schedule   *commission.Schedule
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, svc Services) {
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret, cfg.TokenExpires)
	formHandler := handlers.NewFormHandler(db, svc.Schedule)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	paymentHandler := handlers.NewPaymentHandler(svc.Reconciler)
	providerHandler := handlers.NewProviderHandler(svc.Accounts)
	dashboardHandler := handlers.NewDashboardHandler(db)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	requireAdmin := middleware.AdminAuth(cfg.JWTSecret)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", requireAdmin, authHandler.Me)

	// Purchaser-facing routes
	api.Post("/orders", middleware.FormKey(cfg.FormKey), orderHandler.CreateOrder)
	api.Get("/payments/:gateway/verify", paymentHandler.Verify)
	api.Post("/payments/:gateway/verify", paymentHandler.Verify)
	api.Get("/payments/cancelled", paymentHandler.Cancelled)

	forms := api.Group("/forms", requireAdmin)
	forms.Get("/", formHandler.ListForms)
	forms.Post("/", formHandler.CreateForm)
	forms.Get("/:id", formHandler.GetForm)
	forms.Put("/:id", formHandler.UpdateForm)
	forms.Delete("/:id", formHandler.DeleteForm)

	providers := api.Group("/providers", requireAdmin)
	providers.Get("/", providerHandler.ListProviders)
	providers.Post("/razorpay/account", providerHandler.CreateRazorpayAccount)
	providers.Put("/razorpay/bank", providerHandler.AttachRazorpayBank)
	providers.Post("/cashfree/vendor", providerHandler.CreateCashfreeVendor)
	providers.Put("/cashfree/bank", providerHandler.UpdateCashfreeBank)
	providers.Get("/:provider", providerHandler.GetProvider)

	dashboard := api.Group("/dashboard", requireAdmin)
	dashboard.Get("/summary", dashboardHandler.Summary)
	dashboard.Get("/transactions", dashboardHandler.ListTransactions)
	dashboard.Get("/commissions", dashboardHandler.ListCommissions)
	dashboard.Get("/forms", dashboardHandler.FormStats)
}
