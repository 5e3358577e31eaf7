package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tradeloom/api"
	"tradeloom/cache"
	"tradeloom/config"
	"tradeloom/database"
	"tradeloom/database/analytics"
	"tradeloom/database/lessons"
	"tradeloom/database/strands"
	"tradeloom/learning"
	"tradeloom/llm"
	"tradeloom/notifications"
	"tradeloom/realtime"
	"tradeloom/telemetry"
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	analyticsDB    *database.DB
	redis          *cache.RedisClient
	repo           *database.StrandRepository
	ingestRepo     *strands.Repository
	lessonsRepo    *lessons.Repository
	analyticsRepo  *analytics.Repository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	orchestrator   *learning.Orchestrator
	learningRunner *LearningRunner
	decayRefresher *DecayRefresher
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

// Start starts the application
func (a *App) Start() error {
	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// Separate plain-SQL connection for the aggregate stats queries
	analyticsDB, err := database.NewConnection(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("analytics connection failed: %w", err)
	}
	a.analyticsDB = analyticsDB

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)

	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	// 3. Schema and repositories
	a.repo = database.NewStrandRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	a.ingestRepo = strands.NewRepository(a.db.DB())
	a.lessonsRepo = lessons.NewRepository(a.db.DB())
	a.analyticsRepo = analytics.NewRepository(a.analyticsDB.GetConn())

	// 4. Metrics registry
	telemetry.Init()

	// 5. Webhook Manager (with Redis) and realtime broker
	a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis)
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	// 6. LLM summarizer if enabled
	var summarizer learning.Summarizer
	if a.config.LLM.Enabled {
		llmClient := llm.NewClient(a.config.LLM.Endpoint, a.config.LLM.APIKey, a.config.LLM.Model)
		summarizer = llm.NewSummarizer(
			llmClient,
			cache.NewSummaryCache(a.redis),
			a.config.LLM.MaxTokens,
			a.config.LLM.Temperature,
			time.Duration(a.config.LLM.CooldownMinutes)*time.Minute,
		)
		log.Printf("✅ LLM lesson summaries ENABLED (Model: %s)", a.config.LLM.Model)
	} else {
		log.Println("ℹ️  LLM lesson summaries DISABLED, using templates")
	}

	// 7. Learning orchestrator
	a.orchestrator = learning.NewOrchestrator(
		learning.NewRegistry(),
		a.repo,
		a.lessonsRepo,
		a.repo,
		summarizer,
		a.orchestratorConfig(),
	)

	// 8. Background runners
	log.Println("🚀 Starting learning runners...")

	a.learningRunner = NewLearningRunner(
		a.orchestrator,
		a.redis,
		a.broker,
		a.webhookManager,
		time.Duration(a.config.Learning.RunIntervalMinutes)*time.Minute,
		time.Duration(a.config.Learning.AcceleratedRunIntervalMinutes)*time.Minute,
	)
	go a.learningRunner.Start()

	a.decayRefresher = NewDecayRefresher(
		a.repo,
		a.lessonsRepo,
		time.Duration(a.config.Learning.RefreshIntervalMinutes)*time.Minute,
		time.Duration(a.config.Learning.OverrideTTLDays)*24*time.Hour,
	)
	go a.decayRefresher.Start()

	// 9. API Server (AFTER the runner exists, so triggers can be wired)
	apiServer := api.NewServer(a.repo, a.ingestRepo, a.lessonsRepo, a.analyticsRepo, a.webhookManager, a.broker)
	apiServer.SetRunTrigger(a.learningRunner)

	apiPort, err := strconv.Atoi(a.config.APIPort)
	if err != nil {
		return fmt.Errorf("invalid API port: %w", err)
	}
	go func() {
		if err := apiServer.Start(apiPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 10. Wait for interrupt and perform graceful shutdown
	return a.gracefulShutdown()
}

// orchestratorConfig maps the environment tuning onto the pass pipeline
func (a *App) orchestratorConfig() learning.OrchestratorConfig {
	lc := a.config.Learning
	return learning.OrchestratorConfig{
		StrandWindow: time.Duration(lc.StrandWindowHours) * time.Hour,
		BatchLimit:   lc.BatchLimit,
		Parallelism:  lc.MiningParallelism,
		Grouping: learning.GroupingConfig{
			RefinementMinSize: lc.RefinementMinSize,
			RefinementRadius:  lc.RefinementRadius,
		},
		Miner: learning.MinerConfig{
			MinSamples:        lc.MinLessonSamples,
			SupportSaturation: lc.SupportSaturation,
			HalfLife:          time.Duration(lc.DecayHalfLifeHrs) * time.Hour,
		},
		Materializer: learning.MaterializerConfig{
			MinEdge: lc.MinOverrideEdge,
			TTL:     time.Duration(lc.OverrideTTLDays) * 24 * time.Hour,
		},
		CorrelationCeiling: lc.CorrelationCeiling,
	}
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown() error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		if a.learningRunner != nil {
			fmt.Println("🧠 Stopping learning runner...")
			a.learningRunner.Stop()
		}
		if a.decayRefresher != nil {
			fmt.Println("🔄 Stopping decay refresher...")
			a.decayRefresher.Stop()
		}
		if a.broker != nil {
			fmt.Println("📡 Stopping event stream broker...")
			a.broker.Stop()
		}

		// Close database connections
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}
		if a.analyticsDB != nil {
			if err := a.analyticsDB.Close(); err != nil {
				log.Printf("Error closing analytics connection: %v", err)
			}
		}

		// Close Redis connection
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-time.After(10 * time.Second):
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
