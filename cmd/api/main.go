package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perfdesk/perfdesk/internal/api"
	"github.com/perfdesk/perfdesk/internal/api/middleware"
	"github.com/perfdesk/perfdesk/internal/config"
	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/jobs"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/repository"
	"github.com/perfdesk/perfdesk/internal/service"
	"github.com/perfdesk/perfdesk/internal/source/github"
	"github.com/perfdesk/perfdesk/internal/source/jira"
	"github.com/perfdesk/perfdesk/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		ServiceName: "perfdesk-api",
	})
	logger.SetDefault(appLog)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	remoteRepo := repository.NewRemoteRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(db)
	heartbeatRepo := repository.NewHeartbeatRepository(db)

	criteriaIndex, err := repository.NewCriteriaIndex(&repository.CriteriaIndexConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to criteria index")
	}
	defer criteriaIndex.Close()

	ctx := context.Background()
	if err := criteriaIndex.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure criteria collection")
	}

	artifactStore, err := storage.NewS3Storage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize artifact storage")
	}
	if err := artifactStore.EnsureBucket(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure artifact bucket")
	}

	llm := service.NewLLMClient(&service.LLMConfig{
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})
	embedding := service.NewEmbeddingService(&service.EmbeddingConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})

	// Mirror criteria into the vector index; sync jobs match against it.
	if err := service.SeedCriteria(ctx, evidenceRepo, embedding, criteriaIndex); err != nil {
		appLog.WithError(err).Warn("Failed to seed criteria index")
	}

	analyzer := service.NewLLMAnalyzer(llm)
	matcher := service.NewVectorMatcher(embedding, criteriaIndex, 3, 0.35)
	syncSvc := service.NewSyncService(remoteRepo, evidenceRepo, analyzer, matcher, appLog)

	githubSrc := github.New(ctx, cfg.GitHub.Token, appLog)
	jiraSrc := jira.New(&jira.Config{
		BaseURL:  cfg.Jira.BaseURL,
		Email:    cfg.Jira.Email,
		APIToken: cfg.Jira.APIToken,
	}, appLog)

	dispatcher := jobs.NewDispatcher(jobRepo, appLog)
	dispatcher.Register(domain.JobTypeGitHubSync, service.NewSyncHandler(syncSvc, githubSrc))
	dispatcher.Register(domain.JobTypeJiraSync, service.NewSyncHandler(syncSvc, jiraSrc))
	dispatcher.Register(domain.JobTypeAgentSync, service.NewAgentSyncHandler(syncSvc, githubSrc, jiraSrc))
	dispatcher.Register(domain.JobTypeReport, service.NewReportHandler(evidenceRepo, llm, artifactStore))
	dispatcher.Register(domain.JobTypeReviewAnalysis, service.NewReviewAnalysisHandler(llm))
	dispatcher.Register(domain.JobTypeGoalRecompute, service.NewGoalRecomputeHandler(evidenceRepo))
	dispatcher.Register(domain.JobTypePeriodicInsight, service.NewInsightHandler(evidenceRepo, llm))

	poller := jobs.NewPoller(jobRepo, heartbeatRepo, dispatcher, cfg.Jobs.Workers, appLog)
	jobSvc := jobs.NewService(jobRepo, dispatcher, cfg.Jobs.ImmediateDispatch, appLog)

	router := api.SetupRouter(
		api.RouterConfig{
			Mode: cfg.Server.Mode,
			CORS: middleware.CORSConfig{
				AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
				AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
			},
			PollSecret: cfg.Jobs.PollSecret,
			StaleAfter: cfg.Jobs.PollInterval * time.Duration(cfg.Jobs.StaleMultiple),
		},
		jobSvc, poller, jobRepo, heartbeatRepo, appLog,
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}
	appLog.Info("Server exited")
}
