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

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/bookkeeping/api"
	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/account"
	accountpg "github.com/frahmantamala/bookkeeping/internal/account/postgres"
	"github.com/frahmantamala/bookkeeping/internal/audit"
	auditpg "github.com/frahmantamala/bookkeeping/internal/audit/postgres"
	"github.com/frahmantamala/bookkeeping/internal/auth"
	authpg "github.com/frahmantamala/bookkeeping/internal/auth/postgres"
	"github.com/frahmantamala/bookkeeping/internal/cache"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/fraud"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	permissionpg "github.com/frahmantamala/bookkeeping/internal/permission/postgres"
	"github.com/frahmantamala/bookkeeping/internal/ratelimit"
	"github.com/frahmantamala/bookkeeping/internal/reimbursement"
	reimbursementpg "github.com/frahmantamala/bookkeeping/internal/reimbursement/postgres"
	"github.com/frahmantamala/bookkeeping/internal/settlement"
	settlementpg "github.com/frahmantamala/bookkeeping/internal/settlement/postgres"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
	transactionpg "github.com/frahmantamala/bookkeeping/internal/transaction/postgres"
	"github.com/frahmantamala/bookkeeping/internal/transport/rest"
	"github.com/frahmantamala/bookkeeping/internal/transport/swagger"
	"github.com/frahmantamala/bookkeeping/internal/user"
	userpg "github.com/frahmantamala/bookkeeping/internal/user/postgres"
	"github.com/frahmantamala/bookkeeping/internal/workflow"
	"github.com/frahmantamala/bookkeeping/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Bus    *events.EventBus
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "env", deps.Config.Env)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		deps.close()
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

// close drains in-flight event handlers before the connections they write through go away.
func (d *Dependencies) close() {
	d.Bus.Wait()
	if sqlDB, err := d.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			d.Logger.Error("Database close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lg := logger.Configure(config.Observability.Logging.Level, config.Observability.Logging.Format)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	reports, redisClient := cache.New(config.Redis)
	bus := events.NewEventBus(lg)
	router := chi.NewRouter()

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Redis:  redisClient,
		Bus:    bus,
		Router: router,
		Logger: lg,
	}

	routes, err := buildRoutes(deps, reports)
	if err != nil {
		deps.close()
		return nil, err
	}
	rest.RegisterAllRoutes(router, routes, lg)
	return deps, nil
}

func buildRoutes(deps *Dependencies, reports cache.Cache) (rest.Routes, error) {
	cfg, db, bus, lg := deps.Config, deps.DB, deps.Bus, deps.Logger

	var m *metrics.Metrics
	if cfg.Observability.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	} else {
		m = metrics.Nop()
	}

	transactor := store.NewTransactor(db)

	auditLog := audit.NewLogger(auditpg.NewRepository(db), lg)
	auditLog.Subscribe(bus)

	accessRepo := permissionpg.NewAccessRepository(db)
	checker := permission.NewChecker(accessRepo, lg)

	authService := auth.NewService(authpg.NewRepository(db), auth.NewJWTTokenGenerator(cfg.Security), reports,
		cfg.Security.AccessTokenDuration, lg)
	userService := user.NewService(userpg.NewUserRepository(db), accessRepo, checker, lg)

	accounts := account.NewService(accountpg.NewAccountRepository(db), transactor, checker, cfg.Accounts, bus, m, lg)

	ledger := settlement.NewLedger(settlementpg.NewSettlementRepository(db), transactor, checker, reports,
		cfg.Settlement, bus, m, lg)

	txnRepo := transactionpg.NewTransactionRepository(db)
	transactions := transaction.NewService(txnRepo, transactor, checker, ledger, accounts, bus, lg)
	flow := workflow.NewService(txnRepo, transactor, checker, bus, m, lg)

	reimbursementRepo := reimbursementpg.NewReimbursementRepository(db)
	scorers := []fraud.Scorer{fraud.NewRuleScorer(reimbursementRepo, cfg.Reimbursement)}
	if cfg.Fraud.ScorerURL != "" {
		scorers = append(scorers, fraud.NewClient(cfg.Fraud, lg))
	}
	reimbursements := reimbursement.NewService(reimbursementRepo, transactor, checker, fraud.NewEngine(lg, m, scorers...),
		transactions, accounts, cfg.Reimbursement, bus, m, lg)

	var limiter ratelimit.Limiter
	var err error
	if deps.Redis != nil {
		limiter, err = ratelimit.NewRedisBucket(deps.Redis, cfg.RateLimit.TrackRate, cfg.RateLimit.TrackBurst)
	} else {
		limiter, err = ratelimit.NewMemoryBucket(cfg.RateLimit.TrackRate, cfg.RateLimit.TrackBurst)
	}
	if err != nil {
		return rest.Routes{}, fmt.Errorf("failed to build rate limiter: %w", err)
	}

	openAPI, err := swagger.SpecHandler(context.Background(), api.OpenAPI)
	if err != nil {
		return rest.Routes{}, err
	}

	checks := map[string]rest.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}
	}

	routes := rest.Routes{
		Auth:        auth.NewHandler(authService, lg),
		User:        user.NewHandler(userService, lg),
		Permission:  permission.NewHandler(checker, lg),
		Permissions: permission.NewMiddleware(checker, lg),
		Expenses: rest.TransactionRoutes{
			CRUD:     transaction.NewHandler(transactions, transaction.TypeExpense, lg),
			Workflow: workflow.NewHandler(flow, transaction.TypeExpense, lg),
		},
		Incomes: rest.TransactionRoutes{
			CRUD:     transaction.NewHandler(transactions, transaction.TypeIncome, lg),
			Workflow: workflow.NewHandler(flow, transaction.TypeIncome, lg),
		},
		Settlement:     settlement.NewHandler(ledger, lg),
		Reimbursement:  reimbursement.NewHandler(reimbursements, cfg.Fraud.WebhookKey, lg),
		Account:        account.NewHandler(accounts, lg),
		Audit:          audit.NewHandler(auditLog, lg),
		Health:         rest.NewHealthHandler(checks),
		TrackLimit:     ratelimit.PerClientIP(limiter, "track:", lg),
		OpenAPI:        openAPI,
		Swagger:        swagger.Handler("/openapi.yml"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Observability.Metrics.Enabled {
		routes.Metrics = m
		routes.MetricsPath = cfg.Observability.Metrics.Path
	}
	return routes, nil
}

// initDB opens the postgres pool through gorm's pgx driver.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
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
	return db, nil
}
