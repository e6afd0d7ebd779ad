package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/luissimon96/migration-validation-voe/internal/analysis"
	"github.com/luissimon96/migration-validation-voe/internal/behavioral"
	"github.com/luissimon96/migration-validation-voe/internal/clients/gcp"
	"github.com/luissimon96/migration-validation-voe/internal/comparator"
	"github.com/luissimon96/migration-validation-voe/internal/db"
	"github.com/luissimon96/migration-validation-voe/internal/fingerprint"
	voehttp "github.com/luissimon96/migration-validation-voe/internal/http"
	"github.com/luissimon96/migration-validation-voe/internal/http/handlers"
	httpmw "github.com/luissimon96/migration-validation-voe/internal/http/middleware"
	"github.com/luissimon96/migration-validation-voe/internal/inference/client"
	"github.com/luissimon96/migration-validation-voe/internal/llm"
	"github.com/luissimon96/migration-validation-voe/internal/observability"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/progress"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/realtime/bus"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
	"github.com/luissimon96/migration-validation-voe/internal/scheduler"
	"github.com/luissimon96/migration-validation-voe/internal/services"
	"github.com/luissimon96/migration-validation-voe/internal/utils"
)

// exit codes the CLI commits to: 0 success, 2 invalid input, 4 transport
// or infra failure.
const (
	exitOK           = 0
	exitInvalidInput = 2
	exitInfraFailure = 4
)

// components bundles every wired collaborator a subcommand might need.
// serve uses all of it; health only needs the storage and LLM legs.
type components struct {
	log *logger.Logger

	pg       *db.PostgresService
	sessions repos.SessionRepo
	results  repos.ResultRepo
	apiKeys  repos.APIKeyRepo
	audit    repos.AuditLogRepo

	cache        *fingerprint.Cache
	dispatcher   *llm.Dispatcher
	analysisRun  *analysis.Runner
	comparator   *comparator.Comparator
	behavioralRn *behavioral.Runner

	sseHub  *realtime.SSEHub
	emitter services.SSEEmitter
	broker  *progress.Broker

	sessionSvc *services.SessionService
	authSvc    services.AuthService

	admission *scheduler.Admission
	pool      *scheduler.Pool

	metrics   *observability.Metrics
	redisAddr string
}

func mustLogger() *logger.Logger {
	mode := strings.TrimSpace(os.Getenv("LOG_MODE"))
	if mode == "" {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(exitInfraFailure)
	}
	return log
}

// wireComponents builds the full dependency graph in the order each piece
// needs its collaborators: storage, then the LLM stack, then the analysis
// and comparison pipeline, then realtime and scheduling on top.
func wireComponents(log *logger.Logger) (*components, error) {
	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	gormDB := pg.DB()

	sessions := repos.NewSessionRepo(gormDB, log)
	results := repos.NewResultRepo(gormDB, log)
	apiKeys := repos.NewAPIKeyRepo(gormDB, log)
	audit := repos.NewAuditLogRepo(gormDB, log)

	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	var rdb *goredis.Client
	if redisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: redisAddr, DialTimeout: 5 * time.Second})
	}
	cache := fingerprint.NewCache(log, rdb)

	dispatcher, err := wireDispatcher(log, cache)
	if err != nil {
		return nil, fmt.Errorf("wire llm dispatcher: %w", err)
	}

	codeModel := utils.GetEnv("LLM_CODE_MODEL", "", log)
	compareModel := utils.GetEnv("LLM_COMPARE_MODEL", "", log)
	analysisBudget := llm.NewBudget(utils.GetEnvAsInt("ANALYSIS_MAX_TOKENS", 200000, log), utils.GetEnvAsInt("ANALYSIS_MAX_COST_CENTS", 5000, log))
	compareBudget := llm.NewBudget(utils.GetEnvAsInt("COMPARE_MAX_TOKENS", 200000, log), utils.GetEnvAsInt("COMPARE_MAX_COST_CENTS", 5000, log))

	var visualAnalyzer analysis.VisualAnalyzer
	if vision, err := gcp.NewVision(log); err != nil {
		log.Warn("vision client unavailable; screenshot analysis disabled", "error", err)
	} else {
		visualAnalyzer = analysis.NewVisionAnalyzer(vision)
	}

	store := analysis.NewLocalContentStore(utils.GetEnv("UPLOAD_DIR", "/tmp/voe-uploads", log))
	codeAnalyzers := []analysis.CodeAnalyzer{
		analysis.NewGoASTAnalyzer(),
		analysis.NewLLMCodeAnalyzer(dispatcher, codeModel, analysisBudget),
	}
	analysisRun := analysis.NewRunner(log, codeAnalyzers, visualAnalyzer, store, cache)

	comp := comparator.NewComparator(log, dispatcher, compareModel, compareBudget)

	behavioralRn := behavioral.NewRunner(log, behavioral.NewHTTPProber(&http.Client{Timeout: 30 * time.Second}))

	sseHub := realtime.NewSSEHub(log)
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: sseHub}
	if os.Getenv("REDIS_ADDR") != "" {
		if b, err := bus.NewRedisBus(log); err != nil {
			log.Warn("redis SSE bus unavailable; falling back to in-process hub", "error", err)
		} else {
			emitter = &services.RedisEmitter{Bus: b}
		}
	}
	broker := progress.NewBroker(log, sseHub, sessions)

	sessionSvc := services.NewSessionService(gormDB, log, sessions, results, analysisRun, comp, behavioralRn, emitter)

	jwtSecret := utils.GetEnv("JWT_SECRET_KEY", "", log)
	accessTTL := utils.GetEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour, log)
	authSvc := services.NewAuthService(gormDB, log, apiKeys, audit, jwtSecret, accessTTL)

	admission := scheduler.NewAdmission(gormDB, log,
		sessions,
		emitter,
		utils.GetEnvAsInt("SCHEDULER_GLOBAL_CAP", scheduler.DefaultGlobalCap, log),
		utils.GetEnvAsInt("SCHEDULER_TENANT_CAP", scheduler.DefaultTenantCap, log),
		utils.GetEnvAsInt("SCHEDULER_POOL_SIZE", scheduler.DefaultPoolSize, log),
	)
	pool := scheduler.NewPool(gormDB, log, sessions, emitter, sessionSvc,
		utils.GetEnvAsInt("SCHEDULER_POOL_SIZE", scheduler.DefaultPoolSize, log),
		utils.GetEnvAsDuration("SCHEDULER_SESSION_TTL", scheduler.DefaultSessionTTL, log),
	)

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.Init(log)
	}

	return &components{
		log:          log,
		pg:           pg,
		sessions:     sessions,
		results:      results,
		apiKeys:      apiKeys,
		audit:        audit,
		cache:        cache,
		dispatcher:   dispatcher,
		analysisRun:  analysisRun,
		comparator:   comp,
		behavioralRn: behavioralRn,
		sseHub:       sseHub,
		emitter:      emitter,
		broker:       broker,
		sessionSvc:   sessionSvc,
		authSvc:      authSvc,
		admission:    admission,
		pool:         pool,
		metrics:      metrics,
		redisAddr:    redisAddr,
	}, nil
}

// wireDispatcher builds one Provider per comma-separated name in
// LLM_PROVIDERS (failover order), reading each provider's transport and
// rate-limit ceilings from its own LLM_<NAME>_* environment block.
func wireDispatcher(log *logger.Logger, cache *fingerprint.Cache) (*llm.Dispatcher, error) {
	names := strings.Split(utils.GetEnv("LLM_PROVIDERS", "primary", log), ",")
	var configs []llm.ProviderConfig
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		cli, err := client.NewFromProviderEnv(name)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		models := splitNonEmpty(os.Getenv("LLM_" + strings.ToUpper(name) + "_MODELS"))
		configs = append(configs, llm.ProviderConfig{
			Provider:          llm.NewHTTPProvider(name, models, cli),
			RequestsPerMinute: utils.GetEnvAsInt("LLM_"+strings.ToUpper(name)+"_RPM", 60, log),
			TokensPerMinute:   utils.GetEnvAsInt("LLM_"+strings.ToUpper(name)+"_TPM", 100000, log),
		})
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	return llm.NewDispatcher(log, configs, cache), nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	log := mustLogger()
	defer log.Sync()

	rootCmd := &cobra.Command{
		Use:   "voe",
		Short: "validation orchestration engine",
	}

	var serveAddr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API surface",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(log, serveAddr)
		},
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":"+utils.GetEnv("PORT", "8080", nil), "address to listen on")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "check database and provider connectivity and exit",
		Run: func(cmd *cobra.Command, args []string) {
			runHealthCheck(log)
		},
	}

	rootCmd.AddCommand(serveCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(exitInfraFailure)
	}
}

func runServe(log *logger.Logger, addr string) {
	comps, err := wireComponents(log)
	if err != nil {
		log.Error("failed to wire components", "error", err)
		os.Exit(exitInfraFailure)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n, err := comps.sessions.ReapInterrupted(ctx, nil, "interrupted"); err != nil {
		log.Error("failed to reap interrupted sessions at startup", "error", err)
	} else if n > 0 {
		log.Warn("reaped sessions left processing by a prior crash", "count", n)
	}

	comps.pool.Start(ctx)
	comps.broker.Start(ctx)

	if otelEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); otelEndpoint != "" {
		shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
			ServiceName: "migration-validation-voe",
			Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		})
		defer shutdown(ctx)
	}
	if comps.metrics != nil {
		comps.metrics.StartPostgresCollector(ctx, log, comps.pg.DB())
		comps.metrics.StartQueueDepthCollector(ctx, log, comps.pg.DB())
		if comps.redisAddr != "" {
			comps.metrics.StartRedisCollector(ctx, log, comps.redisAddr)
		}
		comps.metrics.StartServer(ctx, log, utils.GetEnv("METRICS_ADDR", ":9090", log))
	}

	uploadDir := utils.GetEnv("UPLOAD_DIR", "/tmp/voe-uploads", log)
	validateHandler := handlers.NewValidateHandler(log, comps.sessions, comps.results, comps.admission, comps.pool, comps.sessionSvc, comps.audit, uploadDir)
	realtimeHandler := handlers.NewRealtimeHandler(log, comps.sseHub, comps.broker, comps.sessions)
	technologyHandler := handlers.NewTechnologyHandler()
	healthHandler := handlers.NewHealthHandler(comps.pg.DB(), comps.sessions, comps.dispatcher, comps.cache)

	authMiddleware := httpmw.NewAuthMiddleware(log, comps.authSvc)
	rateLimiter := httpmw.NewRateLimiter()

	server := voehttp.NewServer(voehttp.RouterConfig{
		ValidateHandler:   validateHandler,
		RealtimeHandler:   realtimeHandler,
		TechnologyHandler: technologyHandler,
		HealthHandler:     healthHandler,
		AuthMiddleware:    authMiddleware,
		RateLimiter:       rateLimiter,
		Metrics:           comps.metrics,
		Log:               log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr)
		errCh <- server.Run(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server exited", "error", err)
			os.Exit(exitInfraFailure)
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}
}

func runHealthCheck(log *logger.Logger) {
	comps, err := wireComponents(log)
	if err != nil {
		log.Error("health check failed to wire components", "error", err)
		os.Exit(exitInfraFailure)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sqlDB, err := comps.pg.DB().DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		fmt.Fprintln(os.Stderr, "database: down")
		os.Exit(exitInfraFailure)
	}
	fmt.Println("database: up")

	for name, up := range comps.dispatcher.ProviderHealth() {
		status := "up"
		if !up {
			status = "down"
		}
		fmt.Printf("provider %s: %s\n", name, status)
	}
	os.Exit(exitOK)
}
