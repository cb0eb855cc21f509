// The worker process runs the batch-poll trigger on a fixed cadence. It
// registers the same handler set as the API server, so either process can
// drive a job to completion; the store's pending-only claim keeps them from
// running the same job twice.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

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
		ServiceName: "perfdesk-worker",
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

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := fmt.Sprintf("@every %s", cfg.Jobs.PollInterval)
	if _, err := c.AddFunc(spec, func() {
		if _, err := poller.RunOnce(context.Background()); err != nil {
			appLog.WithError(err).Error("Poll cycle failed")
		}
	}); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule poll loop")
	}

	appLog.WithField("interval", cfg.Jobs.PollInterval.String()).Info("Starting worker poll loop")
	c.Start()

	// Run one cycle immediately so pending jobs left over from a previous
	// process are picked up without waiting a full interval.
	if _, err := poller.RunOnce(ctx); err != nil {
		appLog.WithError(err).Error("Initial poll cycle failed")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	stopCtx := c.Stop()
	<-stopCtx.Done()
	appLog.Info("Worker exited")
}
