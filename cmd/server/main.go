package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/config"
	"expense-ledger/internal/handlers"
	"expense-ledger/internal/ledger"
	"expense-ledger/internal/mailer"
	"expense-ledger/internal/passwordreset"
	"expense-ledger/internal/payment"
	"expense-ledger/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("Database schema ready", "driver", cfg.DBDriver)

	h, err := newHandlers(cfg, db, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           setupRouter(h, handlers.NewIPResolver(cfg.TrustedProxies), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "port", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newHandlers(cfg config.Config, db *storage.DB, logger *slog.Logger) (*handlers.Handlers, error) {
	tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	var mail mailer.Mailer = mailer.NewLog(logger)
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	var payments *payment.Service
	if cfg.PaymentsEnabled() {
		client := payment.NewClient(payment.BaseURLFor(cfg.CashfreeEnv), cfg.CashfreeAppID, cfg.CashfreeSecretKey, nil)
		payments = payment.NewService(db, client, payment.Config{
			Price:         cfg.PremiumPrice,
			ReturnURL:     cfg.PaymentReturnURL,
			WebhookSecret: cfg.CashfreeWebhookSecret,
		}, logger)
	} else {
		logger.Warn("payment gateway not configured, premium purchases disabled")
	}

	return handlers.NewHandlers(handlers.Deps{
		DB:       db,
		Ledger:   ledger.NewService(db),
		Resets:   passwordreset.NewService(db, mail, cfg.ResetBaseURL, cfg.ResetTTL, logger),
		Payments: payments,
		Tokens:   tokens,
		Logger:   logger,
	}), nil
}

func setupRouter(h *handlers.Handlers, ips *handlers.IPResolver, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	limiter := handlers.NewRateLimiter(10, 5, ips)

	authed := func(fn http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(fn)
	}
	limited := func(fn http.HandlerFunc) http.Handler {
		return limiter.Limit(fn)
	}

	mux.HandleFunc("GET /health", h.Health)

	// Accounts
	mux.Handle("POST /signup", limited(h.Signup))
	mux.Handle("POST /login", limited(h.Login))
	mux.Handle("GET /verify", authed(h.Verify))

	// Password reset
	mux.Handle("POST /password/forgot", limited(h.ForgotPassword))
	mux.HandleFunc("POST /password/reset/{id}", h.ResetPassword)

	// Categories
	mux.HandleFunc("GET /categories", h.ListCategories)
	mux.Handle("POST /categories", authed(h.CreateCategory))

	// Expenses
	mux.Handle("GET /expenses", authed(h.ListExpenses))
	mux.Handle("POST /expenses", authed(h.CreateExpense))
	mux.Handle("DELETE /expenses/{id}", authed(h.DeleteExpense))
	mux.Handle("GET /expenses/leaderboard", authed(h.Leaderboard))
	mux.Handle("GET /expenses/statistics", authed(h.Statistics))
	mux.Handle("GET /expenses/report.pdf", authed(h.ReportPDF))
	mux.Handle("POST /expenses/reconcile", authed(h.ReconcileTotal))

	// Incomes
	mux.Handle("GET /incomes", authed(h.ListIncomes))
	mux.Handle("POST /incomes", authed(h.CreateIncome))
	mux.Handle("DELETE /incomes/{id}", authed(h.DeleteIncome))

	// Payments
	mux.Handle("POST /payment/create-order", authed(h.CreateOrder))
	mux.Handle("GET /payment/status/{orderId}", authed(h.PaymentStatus))
	mux.HandleFunc("POST /payment/webhook", h.PaymentWebhook)
	mux.Handle("GET /payment/premium-status", authed(h.PremiumStatus))
	mux.Handle("POST /payment/refresh-token", authed(h.RefreshToken))
	mux.Handle("GET /payment/orders", authed(h.ListOrders))

	return handlers.Recover(logger, handlers.WithLogging(logger, handlers.CORS(mux)))
}
