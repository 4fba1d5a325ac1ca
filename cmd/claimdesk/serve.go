package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liliang-cn/claimdesk/internal/ai"
	"github.com/liliang-cn/claimdesk/internal/api"
	"github.com/liliang-cn/claimdesk/internal/api/middleware"
	"github.com/liliang-cn/claimdesk/internal/realtime"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"github.com/liliang-cn/claimdesk/internal/service"
	"github.com/liliang-cn/claimdesk/internal/storage"
	"github.com/liliang-cn/claimdesk/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" && !cfg.Auth.TrustHeaders {
		logger.Warn("no auth method configured, every API request will be rejected")
	}

	// Initialize database
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := storage.NewLocalStore(cfg.Storage.Documents)
	if err != nil {
		return err
	}

	checklists, err := validation.LoadChecklists(cfg.Validation.ChecklistFile)
	if err != nil {
		return err
	}

	// Initialize repositories
	claimRepo := repository.NewClaimRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	notificationService := service.NewNotificationService(repository.NewNotificationRepository(db), logger)

	// Policy retrieval
	var retriever ai.Retriever
	var ingestService *service.IngestService
	if cfg.RAG.Enabled {
		ingestService = service.NewIngestService(policyRepo, cfg.RAG.ChunkSize, logger)
		retriever = ai.NewPolicyRetriever(policyRepo, cfg.RAG.TopK)
		if _, err := os.Stat(cfg.RAG.PolicyDir); err == nil {
			docs, err := ingestService.IngestDir(cmd.Context(), cfg.RAG.PolicyDir)
			if err != nil {
				logger.Warn("policy indexing incomplete", zap.Error(err))
			}
			logger.Info("policies indexed", zap.Int("documents", len(docs)))
		}
	}

	provider, err := ai.NewProvider(cmd.Context(), cfg.LLM)
	if err != nil {
		return err
	}
	generator := ai.NewGenerator(provider, retriever, ai.GeneratorConfig{
		Timeout:       cfg.LLM.Timeout,
		MaxRetries:    cfg.LLM.MaxRetries,
		HistoryWindow: cfg.Chat.HistoryWindow,
	}, logger)

	hub := realtime.NewHub(logger)
	queue := service.NewTurnQueue(logger)

	workflow := service.NewWorkflow(service.WorkflowConfig{
		Claims:            claimRepo,
		Progress:          repository.NewProgressRepository(db),
		Documents:         repository.NewDocumentRepository(db),
		Messages:          repository.NewMessageRepository(db),
		Notifications:     notificationService,
		Engine:            validation.NewEngine(checklists, cfg.Validation.AcceptanceThreshold),
		Assessor:          validation.NewBasicAssessor(cfg.MaxUploadBytes()),
		Store:             store,
		Publisher:         hub,
		AssessTimeout:     cfg.Chat.AssessTimeout,
		AssessConcurrency: cfg.Validation.AssessConcurrency,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		Logger:            logger,
	})

	// Initialize services
	chatService := service.NewChatService(workflow, generator, queue, service.ChatConfig{
		HistoryWindow:   cfg.Chat.HistoryWindow,
		TurnTimeout:     cfg.Chat.TurnTimeout,
		FallbackMessage: cfg.Chat.FallbackMessage,
	}, logger)

	socket := realtime.NewServer(hub, workflow.Access(), realtime.Options{
		SendBuffer:   cfg.Realtime.SendBuffer,
		PingInterval: cfg.Realtime.PingInterval,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		CheckOrigin:  middleware.OriginAllowed(cfg.Server.AllowOrigins),
	}, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst)
	}

	// Setup router
	router := api.SetupRouter(api.Services{
		Claims:        service.NewClaimService(workflow, logger),
		Chat:          chatService,
		Admin:         service.NewAdminService(workflow, logger),
		Notifications: notificationService,
		Ingest:        ingestService,
		Socket:        socket,
	}, api.RouterConfig{
		Auth: middleware.AuthConfig{
			JWTSecret:    cfg.Auth.JWTSecret,
			TrustHeaders: cfg.Auth.TrustHeaders,
		},
		AllowOrigins:   cfg.Server.AllowOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RateLimit:      limiter,
	}, logger)

	// Create HTTP server. No write timeout: sockets are long-lived and the
	// socket server sets its own write deadlines.
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ClaimDesk server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
			zap.String("llm_provider", provider.Name()),
			zap.Bool("rag", cfg.RAG.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return err
	}

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop in-flight assistant turns before the database closes
	queue.Close()

	logger.Info("Server exited")
	return nil
}
