package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/itbhushan/payform/internal/commission"
	"github.com/itbhushan/payform/internal/config"
	"github.com/itbhushan/payform/internal/database"
	"github.com/itbhushan/payform/internal/gateway"
	"github.com/itbhushan/payform/internal/handlers"
	"github.com/itbhushan/payform/internal/routes"
	"github.com/itbhushan/payform/internal/services"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	db := database.Connect(cfg.DatabaseURL, zerolog.GlobalLevel() <= zerolog.DebugLevel)

	schedule := feeSchedule(cfg)
	registry, accounts := buildGateways(cfg, db)
	if len(registry.Names()) == 0 {
		log.Warn().Msg("no payment gateway is configured; orders will be rejected")
	}

	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	reconciler := services.NewReconcileService(db, registry, schedule, telegramService, services.RetryPolicy{
		Delay:       cfg.ReconcileRetryDelay,
		MaxAttempts: cfg.ReconcileMaxAttempts,
		BatchSize:   cfg.ReconcileBatchSize,
	})
	orders := services.NewOrderService(db, registry, schedule, cfg.AppBaseURL, map[string]string{
		gateway.ProviderRazorpay: cfg.Razorpay.KeyID,
		gateway.ProviderStripe:   cfg.Stripe.KeyID,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := services.NewRetryWorker(ctx, db, reconciler, cfg.ReconcileInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create reconciliation worker")
	}
	if err := worker.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start reconciliation worker")
	}

	app := fiber.New(fiber.Config{
		AppName:      "PayForm",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-PayForm-Key",
	}))

	routes.Register(app, db, cfg, routes.Services{
		Orders:     orders,
		Reconciler: reconciler,
		Accounts:   accounts,
		Schedule:   schedule,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := worker.Stop(); err != nil {
			log.Error().Err(err).Msg("reconciliation worker shutdown failed")
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("fiber shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.AppPort).Strs("gateways", registry.Names()).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("fiber.Listen error")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(cfg.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func feeSchedule(cfg *config.Config) *commission.Schedule {
	models := make(map[string]commission.FeeModel, len(cfg.Fees))
	for provider, fee := range cfg.Fees {
		models[provider] = commission.FeeModel{
			GatewayPercent:  fee.GatewayPercent,
			FixedFee:        fee.FixedFee,
			PlatformPercent: cfg.PlatformPercent,
		}
	}
	return commission.NewSchedule(models)
}

// buildGateways registers every gateway that has credentials. Unconfigured
// clients are nil and must not reach the registry or the account service as
// typed-nil interfaces.
func buildGateways(cfg *config.Config, db *gorm.DB) (*gateway.Registry, *services.AccountService) {
	var (
		gateways []gateway.Gateway
		route    services.RouteAccounts
		vendors  services.VendorAccounts
	)

	if cf := gateway.NewCashfree(gateway.CashfreeOptions{
		BaseURL:    cfg.Cashfree.BaseURL,
		AppID:      cfg.Cashfree.KeyID,
		SecretKey:  cfg.Cashfree.KeySecret,
		APIVersion: cfg.CashfreeAPI,
	}); cf != nil {
		gateways = append(gateways, cf, cf.Links())
		vendors = cf
	} else {
		log.Warn().Msg("cashfree credentials missing; cashfree gateways disabled")
	}

	if rp := gateway.NewRazorpay(gateway.RazorpayOptions{
		BaseURL:   cfg.Razorpay.BaseURL,
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
	}); rp != nil {
		gateways = append(gateways, rp)
		route = rp
	} else {
		log.Warn().Msg("razorpay credentials missing; razorpay gateway disabled")
	}

	if st := gateway.NewStripe(gateway.StripeOptions{
		BaseURL:   cfg.Stripe.BaseURL,
		SecretKey: cfg.Stripe.KeySecret,
		CancelURL: cfg.StripeCancelURL,
	}); st != nil {
		gateways = append(gateways, st)
	} else {
		log.Warn().Msg("stripe secret key missing; stripe gateway disabled")
	}

	return gateway.NewRegistry(gateways...), services.NewAccountService(db, route, vendors)
}
