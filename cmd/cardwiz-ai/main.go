package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/cardwiz/ai-service/internal/ai"
	"github.com/cardwiz/ai-service/internal/auditor"
	"github.com/cardwiz/ai-service/internal/config"
	"github.com/cardwiz/ai-service/internal/db"
	"github.com/cardwiz/ai-service/internal/docanalysis"
	"github.com/cardwiz/ai-service/internal/embedcache"
	"github.com/cardwiz/ai-service/internal/engine"
	"github.com/cardwiz/ai-service/internal/handler"
	"github.com/cardwiz/ai-service/internal/ingest"
	"github.com/cardwiz/ai-service/internal/job"
	"github.com/cardwiz/ai-service/internal/middleware"
	"github.com/cardwiz/ai-service/internal/ratelimit"
	"github.com/cardwiz/ai-service/internal/repo"
	"github.com/cardwiz/ai-service/internal/ruleindex"
	"github.com/cardwiz/ai-service/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "cardwiz-ai",
		Short: "cardwiz ai recommendation service",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run cardwiz ai server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			dbc, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(dbc); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, dbc)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildGenerators(cfgs []config.ProviderConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(cfgs))
	for _, pc := range cfgs {
		provider, err := ai.NewGenProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init generate provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      fmt.Sprintf("%s/%s", pc.Provider, pc.Model),
			Generator: ai.NewGenerator(provider, pc.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedders(cfgs []config.ProviderConfig) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfgs))
	for _, pc := range cfgs {
		provider, err := ai.NewEmbedProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     fmt.Sprintf("%s/%s", pc.Provider, pc.Model),
			Embedder: ai.NewEmbedder(provider, pc.Model),
		})
	}
	return ai.NewGroupEmbedder(entries), nil
}

func buildChatters(cfgs []config.ProviderConfig) (ai.IChatter, error) {
	entries := make([]ai.ChatterEntry, 0, len(cfgs))
	for _, pc := range cfgs {
		provider, err := ai.NewChatProvider(pc.Provider, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init chat provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.ChatterEntry{
			Name:    fmt.Sprintf("%s/%s", pc.Provider, pc.Model),
			Chatter: ai.NewChatter(provider, pc.Model),
		})
	}
	return ai.NewGroupChatter(entries), nil
}

func buildAWSClients(ctx context.Context, cfg config.AWSConfig) (*s3.Client, *sqs.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
	})
	return s3Client, sqsClient, nil
}

func runServer(cfg *config.Config, dbc *sqlx.DB) error {
	rootLogger := logutil.GetLogger(context.Background())
	rootLogger.Info("starting server", zap.Int("port", cfg.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ruleRepo := repo.NewRuleRepo(dbc)
	versionRepo := repo.NewIndexVersionRepo(dbc)
	cacheRepo := repo.NewEmbeddingCacheRepo(dbc)

	var rdb redis.Cmdable
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	generator, err := buildGenerators(cfg.AI.Generate)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedders(cfg.AI.Embed)
	if err != nil {
		return err
	}
	chatter, err := buildChatters(cfg.AI.Chat)
	if err != nil {
		return err
	}
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Retrieval.LRUSize, time.Duration(cfg.Retrieval.CacheTTLSeconds)*time.Second)

	index := ruleindex.New(embedder, ruleRepo, versionRepo, rdb, ruleindex.Config{
		TopK:          cfg.Retrieval.TopK,
		VectorWeight:  cfg.Retrieval.VectorWeight,
		KeywordWeight: cfg.Retrieval.KeywordWeight,
		EmbeddingDim:  cfg.Retrieval.EmbeddingDim,
		CacheTTL:      time.Duration(cfg.Retrieval.CacheTTLSeconds) * time.Second,
	})

	eng := engine.New(index, generator, chatter, engine.Config{
		AgentEnabled:          cfg.Agent.Enabled,
		MaxToolIterations:     cfg.Agent.MaxToolIterations,
		ComplexSpendThreshold: cfg.Agent.ComplexSpendThreshold,
	})
	aud := auditor.New(eng)

	s3Client, sqsClient, err := buildAWSClients(ctx, cfg.AWS)
	if err != nil {
		return err
	}
	analyzer := docanalysis.New(docanalysis.NewS3Fetcher(s3Client), chatter, docanalysis.Config{
		DefaultBucket:   cfg.Ingest.Bucket,
		MaxRetries:      cfg.Ingest.ConverseMaxRetries,
		RetryBackoff:    time.Duration(cfg.Ingest.RetryBackoffSeconds) * time.Second,
		StatementMaxTxs: cfg.Ingest.StatementMaxTxs,
	})

	limiter := ratelimit.New(rdb, cfg.RateLimit.Enabled)

	deps := handler.RouterDeps{
		Embeddings: handler.NewEmbeddingHandler(index),
		Recommend:  handler.NewRecommendHandler(eng, aud, analyzer),
		Documents:  handler.NewDocumentHandler(analyzer),
		Limiter:    limiter,
		RankLimit: handler.RateLimitRule{
			Limit:  cfg.RateLimit.RankLimit,
			Window: time.Duration(cfg.RateLimit.RankWindowSeconds) * time.Second,
		},
		StatementLimit: handler.RateLimitRule{
			Limit:  cfg.RateLimit.StatementLimit,
			Window: time.Duration(cfg.RateLimit.StatementWindowSeconds) * time.Second,
		},
		ServiceSecret: []byte(cfg.ServiceSecret),
	}

	webEngine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Retrieval.CacheMaxAgeDays), cfg.Retrieval.CacheCleanupCron); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Ingest.QueueURL != "" {
		coordinator := ingest.NewCoordinator(analyzer, index, &http.Client{Timeout: 15 * time.Second}, ingest.Config{
			CallbackURL:    cfg.Ingest.CallbackURL,
			CallbackSecret: cfg.Ingest.CallbackSecret,
		})
		consumer := ingest.NewConsumer(sqsClient, cfg.Ingest.QueueURL, coordinator)
		go consumer.Run(ctx)
	}

	go func() {
		if err := webEngine.Run(); err != nil && err != http.ErrServerClosed {
			rootLogger.Error("server error", zap.Error(err))
		}
	}()
	rootLogger.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	<-ctx.Done()
	rootLogger.Info("server stopping...")
	return nil
}
