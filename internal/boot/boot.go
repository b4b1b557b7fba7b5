// Package boot wires the stores, models and services described by
// config.Config. Every binary builds its App here so the HTTP server, the
// Lambda and the CLI share one composition.
package boot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-summarizer/internal/auth"
	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/fpang/video-summarizer/internal/chat"
	"github.com/fpang/video-summarizer/internal/cleanup"
	"github.com/fpang/video-summarizer/internal/config"
	"github.com/fpang/video-summarizer/internal/events"
	"github.com/fpang/video-summarizer/internal/library"
	"github.com/fpang/video-summarizer/internal/logging"
	"github.com/fpang/video-summarizer/internal/memory"
	"github.com/fpang/video-summarizer/internal/s3util"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/fpang/video-summarizer/internal/textsplit"
	"github.com/fpang/video-summarizer/internal/vectorstore"
	"github.com/fpang/video-summarizer/internal/workflow"
)

// ArchivePrefix is the S3 key prefix for archived videos.
const ArchivePrefix = "videos"

// Options tune how New wires the App.
type Options struct {
	// ValidateKey makes one model call before returning.
	ValidateKey bool
	// SkipModels leaves out the models, vector store, memory and service,
	// for tools that only touch the catalog and files.
	SkipModels bool
}

// App holds every wired component. Close releases connections.
type App struct {
	Config    config.Config
	Generator chat.Generator
	Embedder  chat.Embedder
	Catalog   catalog.Store
	Vectors   vectorstore.Store
	Memory    memory.Store
	Archive   *s3util.Archive
	Events    events.Publisher
	Library   *library.Library
	Workflow  *workflow.Workflow
	Service   *service.Service

	aws     *awsLoader
	pool    *pgxpool.Pool
	closers []func()
}

// New builds an App from cfg. On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, opts Options) (app *App, err error) {
	a := &App{Config: cfg, aws: &awsLoader{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Catalog, err = a.newCatalog(ctx); err != nil {
		return nil, err
	}
	if !opts.SkipModels {
		if err := a.newModelStack(ctx, opts); err != nil {
			return nil, err
		}
	}
	if err := a.newAWSExtras(ctx); err != nil {
		return nil, err
	}

	lib := library.Options{
		OrgDir:         cfg.OrgDir,
		TempDir:        cfg.TempDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Catalog:        a.Catalog,
		Events:         a.Events,
	}
	if a.Vectors != nil {
		lib.Vectors = a.Vectors
	}
	if a.Archive != nil {
		lib.Archive = a.Archive
	}
	a.Library = library.New(lib)
	if opts.SkipModels {
		return a, nil
	}

	deps := workflow.Deps{
		Generator: a.Generator,
		Vectors:   a.Vectors,
		Splitter:  textsplit.New(cfg.ChunkSize, cfg.ChunkOverlap),
		Catalog:   a.Catalog,
		TopK:      cfg.TopK,
	}
	if cfg.Classify {
		deps.Classifier = chat.NewClassifier(a.Generator)
	}
	if a.Workflow, err = workflow.New(deps); err != nil {
		return nil, err
	}
	a.Service = service.New(a.Workflow, a.Memory)
	return a, nil
}

// newModelStack wires the model clients and the stores that depend on them.
func (a *App) newModelStack(ctx context.Context, opts Options) error {
	key, err := a.apiKey(ctx)
	if err != nil {
		return err
	}
	if err := a.newModels(ctx, key); err != nil {
		return err
	}
	if opts.ValidateKey {
		if err := auth.ValidateAPIKey(ctx, a.Generator); err != nil {
			return err
		}
	}
	if a.Vectors, err = a.newVectors(ctx); err != nil {
		return err
	}
	a.Memory, err = a.newMemory(ctx)
	return err
}

// Close releases database and Milvus connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Cleanup returns a scheduler over the App's directories and catalog.
func (a *App) Cleanup() *cleanup.Scheduler {
	return &cleanup.Scheduler{
		OrgDir:         a.Config.OrgDir,
		TempDir:        a.Config.TempDir,
		Catalog:        a.Catalog,
		TempMaxAge:     a.Config.TempMaxAge,
		TempInterval:   a.Config.TempInterval,
		OrphanInterval: a.Config.OrphanInterval,
	}
}

// StartupLog describes the wiring for the start-up log line.
func (a *App) StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	cfg := a.Config
	s := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Store("catalog", cfg.CatalogBackend).
		Config("provider", cfg.Provider).
		Config("orgDir", cfg.OrgDir).
		Config("tempDir", cfg.TempDir)
	if a.Generator != nil {
		s.Store("vectors", cfg.VectorBackend).
			Store("memory", cfg.MemoryBackend).
			Model("chat", cfg.ChatModel).
			Model("embedding", cfg.EmbeddingModel).
			Feature("classify", cfg.Classify).
			Feature("archive", a.Archive != nil).
			Feature("events", cfg.EventBus != "")
	}
	if cfg.ArchiveBucket != "" {
		s.S3Bucket("archive", cfg.ArchiveBucket)
	}
	if cfg.APIKeyParam != "" {
		s.SSMParam("apiKey", cfg.APIKeyParam)
	}
	return s
}

// awsLoader loads the default AWS config on first use, so local runs with
// in-memory backends never need credentials.
type awsLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsLoader) get(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("load AWS config: %w", l.err)
			return
		}
		log.Debug().Str("region", l.cfg.Region).Msg("AWS config loaded")
	})
	return l.cfg, l.err
}

func (a *App) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := pgxpool.New(ctx, a.Config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

func (a *App) newCatalog(ctx context.Context) (catalog.Store, error) {
	switch a.Config.CatalogBackend {
	case catalog.BackendMemory, "":
		return catalog.NewMemoryStore(), nil
	case catalog.BackendPostgres:
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		s := catalog.NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", a.Config.CatalogBackend)
	}
}

func (a *App) apiKey(ctx context.Context) (string, error) {
	var getter auth.ParameterGetter
	if a.Config.APIKeyParam != "" {
		awsCfg, err := a.aws.get(ctx)
		if err != nil {
			return "", err
		}
		getter = ssm.NewFromConfig(awsCfg)
	}
	switch a.Config.Provider {
	case config.ProviderGoogle:
		return auth.GetAPIKey(ctx, auth.GeminiKeySource(getter, a.Config.APIKeyParam))
	case config.ProviderOpenAI:
		return auth.GetAPIKey(ctx, auth.OpenAIKeySource(getter, a.Config.APIKeyParam))
	default:
		return "", fmt.Errorf("unknown provider %q", a.Config.Provider)
	}
}

func (a *App) newModels(ctx context.Context, key string) error {
	cfg := a.Config
	switch cfg.Provider {
	case config.ProviderGoogle:
		client, err := chat.NewGeminiClient(ctx, key)
		if err != nil {
			return err
		}
		a.Generator = chat.NewGemini(client, cfg.ChatModel)
		a.Embedder = chat.NewGeminiEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim)
	case config.ProviderOpenAI:
		client := chat.NewOpenAIClient(key, cfg.OpenAIBaseURL)
		a.Generator = chat.NewOpenAI(client, cfg.ChatModel)
		a.Embedder = chat.NewOpenAIEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim)
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return nil
}

func (a *App) newVectors(ctx context.Context) (vectorstore.Store, error) {
	cfg := a.Config
	switch cfg.VectorBackend {
	case vectorstore.BackendMemory, "":
		return vectorstore.NewMemoryStore(a.Embedder), nil

	case vectorstore.BackendPgVector:
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		s, err := vectorstore.NewPgVector(pool, a.Embedder, cfg.VectorTable)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case vectorstore.BackendAurora:
		if cfg.AuroraCluster == "" || cfg.AuroraSecret == "" {
			return nil, fmt.Errorf("aurora vector backend needs VIDEO_AURORA_CLUSTER_ARN and VIDEO_AURORA_SECRET_ARN")
		}
		awsCfg, err := a.aws.get(ctx)
		if err != nil {
			return nil, err
		}
		s, err := vectorstore.NewDataAPI(rdsdata.NewFromConfig(awsCfg), a.Embedder,
			cfg.AuroraCluster, cfg.AuroraSecret, cfg.AuroraDatabase, cfg.VectorTable)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case vectorstore.BackendMilvus:
		s, err := vectorstore.NewMilvus(ctx, cfg.MilvusAddress, cfg.MilvusUser, cfg.MilvusPassword, cfg.VectorTable, a.Embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Milvus client")
			}
		})
		return s, nil

	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) newMemory(ctx context.Context) (memory.Store, error) {
	cfg := a.Config
	switch cfg.MemoryBackend {
	case memory.BackendMemory, "":
		return memory.NewLRUStore(cfg.MaxThreads), nil
	case memory.BackendDynamoDB:
		awsCfg, err := a.aws.get(ctx)
		if err != nil {
			return nil, err
		}
		return memory.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.MemoryTable, cfg.MemoryTTL), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.MemoryBackend)
	}
}

// newAWSExtras wires the optional S3 archive and EventBridge publisher.
func (a *App) newAWSExtras(ctx context.Context) error {
	cfg := a.Config
	a.Events = events.Nop{}
	if cfg.ArchiveBucket == "" && cfg.EventBus == "" {
		return nil
	}
	awsCfg, err := a.aws.get(ctx)
	if err != nil {
		return err
	}
	if cfg.ArchiveBucket != "" {
		a.Archive = s3util.NewArchive(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, ArchivePrefix)
	}
	if cfg.EventBus != "" {
		a.Events = events.NewEventBridge(eventbridge.NewFromConfig(awsCfg), cfg.EventBus)
	}
	return nil
}
