package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/sacco-management/api"
	"github.com/frahmantamala/sacco-management/internal"
	"github.com/frahmantamala/sacco-management/internal/allocation"
	"github.com/frahmantamala/sacco-management/internal/auth"
	"github.com/frahmantamala/sacco-management/internal/core/events"
	"github.com/frahmantamala/sacco-management/internal/eligibility"
	eligibilityPostgres "github.com/frahmantamala/sacco-management/internal/eligibility/postgres"
	"github.com/frahmantamala/sacco-management/internal/loan"
	loanPostgres "github.com/frahmantamala/sacco-management/internal/loan/postgres"
	memberPostgres "github.com/frahmantamala/sacco-management/internal/member/postgres"
	"github.com/frahmantamala/sacco-management/internal/mpesa"
	"github.com/frahmantamala/sacco-management/internal/notification"
	"github.com/frahmantamala/sacco-management/internal/payment"
	paymentPostgres "github.com/frahmantamala/sacco-management/internal/payment/postgres"
	"github.com/frahmantamala/sacco-management/internal/savings"
	savingsPostgres "github.com/frahmantamala/sacco-management/internal/savings/postgres"
	transactionPostgres "github.com/frahmantamala/sacco-management/internal/transaction/postgres"
	"github.com/frahmantamala/sacco-management/internal/transport"
	"github.com/frahmantamala/sacco-management/internal/transport/middleware"
	"github.com/frahmantamala/sacco-management/internal/transport/rest"
	"github.com/frahmantamala/sacco-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving the member API and the gateway callback`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *Database
	Router *chi.Mux
	Bus    *events.EventBus
	Logger *slog.Logger
}

// Database holds the gorm handle used by the repositories and an sqlx view
// of the same pool used by the read-side queries.
type Database struct {
	Gorm *gorm.DB
	SQLX *sqlx.DB
}

func (d *Database) Close() error {
	return d.SQLX.Close()
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	log := deps.Logger

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	log.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Server shutdown error", "error", err)
		}
		if err := deps.Bus.Drain(ctx); err != nil {
			log.Warn("Event handlers still running at shutdown", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			log.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	log.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	bus := events.NewEventBus(log)
	app := buildApplication(cfg, db, bus, log)

	doc, err := middleware.LoadOpenAPI(context.Background(), api.OpenAPISpec)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}

	router := chi.NewRouter()
	err = rest.RegisterAllRoutes(router, db.SQLX, app.handlers, rest.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPI:        doc,
		OpenAPISpec:    api.OpenAPISpec,
	}, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	return &Dependencies{
		Config: cfg,
		DB:     db,
		Router: router,
		Bus:    bus,
		Logger: log,
	}, nil
}

// application is the wired object graph shared by the server and the workers.
type application struct {
	handlers       rest.Handlers
	paymentService *payment.Service
	transactions   *transactionPostgres.TransactionRepository
	callbacks      *paymentPostgres.CallbackLogRepository
}

func buildApplication(cfg *internal.Config, db *Database, bus *events.EventBus, log *slog.Logger) *application {
	base := transport.NewBaseHandler(log)

	members := memberPostgres.NewMemberRepository(db.Gorm)
	transactions := transactionPostgres.NewTransactionRepository(db.Gorm)
	payments := paymentPostgres.NewPaymentRepository(db.Gorm)
	callbacks := paymentPostgres.NewCallbackLogRepository(db.Gorm)
	loans := loanPostgres.NewLoanRepository(db.Gorm)
	savingsRepo := savingsPostgres.NewSavingsRepository(db.Gorm)
	uow := paymentPostgres.NewUnitOfWork(db.Gorm)

	engine := allocation.NewEngine(allocation.Caps{
		Operations: cfg.Allocation.OperationsCap,
		Insurance:  cfg.Allocation.InsuranceCap,
	})

	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:         cfg.Gateway.BaseURL,
		ConsumerKey:     cfg.Gateway.ConsumerKey,
		ConsumerSecret:  cfg.Gateway.ConsumerSecret,
		ShortCode:       cfg.Gateway.ShortCode,
		PassKey:         cfg.Gateway.PassKey,
		CallbackURL:     cfg.Gateway.CallbackURL,
		TransactionType: cfg.Gateway.TransactionType,
		CountryCode:     cfg.Gateway.CountryCode,
		RequestTimeout:  cfg.Gateway.RequestTimeout,
	}, log)

	notifier := notification.NewEventHandler(cfg.Notification, notification.NewSMTPMailer(cfg.Notification), members, log)
	notifier.RegisterEventHandlers(bus)

	processor := payment.NewCallbackProcessor(transactions, uow, engine, bus, log)
	paymentService := payment.NewService(gateway, members, transactions, payments, callbacks, processor, log)
	evaluator := eligibility.NewEvaluator(eligibilityPostgres.NewEligibilityStore(db.SQLX), log)

	verifier := auth.NewJWTVerifier(cfg.Security.JWTSecret)

	return &application{
		handlers: rest.Handlers{
			Auth:        auth.NewMiddleware(base, verifier),
			Payment:     payment.NewHandler(base, paymentService),
			Webhook:     payment.NewWebhookHandler(base, processor, callbacks, cfg.Gateway.CallbackTokenHash),
			Loan:        loan.NewHandler(base, loan.NewService(loans, evaluator, log)),
			Savings:     savings.NewHandler(base, savings.NewService(savingsRepo, log)),
			Eligibility: eligibility.NewHandler(base, evaluator),
		},
		paymentService: paymentService,
		transactions:   transactions,
		callbacks:      callbacks,
	}
}

// initDB opens one pgx pool and exposes it through gorm and sqlx.
func initDB(cfg internal.DatabaseConfig) (*Database, error) {
	const driver = "pgx"

	gdb, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{Gorm: gdb, SQLX: sqlx.NewDb(sqlDB, driver)}, nil
}
