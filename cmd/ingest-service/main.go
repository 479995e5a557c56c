// Command ingest-service runs the HTTP surface and background worker pool
// for the ingest pipeline: upload/paste intake, parsing, PII redaction,
// chunking, embedding, and semantic search.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/auditstream"
	"github.com/analystcopilot/core/pkg/cache"
	"github.com/analystcopilot/core/pkg/config"
	"github.com/analystcopilot/core/pkg/embedding"
	"github.com/analystcopilot/core/pkg/export"
	"github.com/analystcopilot/core/pkg/httpapi"
	"github.com/analystcopilot/core/pkg/ingest"
	"github.com/analystcopilot/core/pkg/metrics"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/otelsetup"
	"github.com/analystcopilot/core/pkg/parser"
	"github.com/analystcopilot/core/pkg/pii"
	"github.com/analystcopilot/core/pkg/rbac"
	"github.com/analystcopilot/core/pkg/search"
	"github.com/analystcopilot/core/pkg/store"
	"github.com/analystcopilot/core/pkg/vectorindex"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	deployCfg, err := config.LoadDeployConfig()
	if err != nil {
		log.Fatalf("loading deploy config: %v", err)
	}
	if err := config.NewDeployValidator(deployCfg).ValidateAll(); err != nil {
		log.Printf("configuration validation failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := otelsetup.Init(ctx, otelsetup.Config{
		Enabled:     getEnv("OTEL_ENABLED", "false") == "true",
		EndpointURL: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: "ingest-service",
	})
	if err != nil {
		log.Fatalf("initializing tracing: %v", err)
	}
	_ = tp
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutting down tracer: %v", err)
		}
	}()

	dbCfg, err := store.ConfigFromURL(deployCfg.DatabaseURL)
	if err != nil {
		log.Fatalf("parsing DATABASE_URL: %v", err)
	}
	dbClient, err := store.NewClient(ctx, dbCfg)
	if err != nil {
		log.Printf("connecting to database: %v", err)
		os.Exit(2)
	}
	defer dbClient.Close()
	log.Println("connected to postgres, migrations applied")

	redisOpts, err := redis.ParseURL(deployCfg.RedisURL)
	if err != nil {
		log.Fatalf("parsing REDIS_URL: %v", err)
	}
	cacheClient := cache.New(cache.Config{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		log.Printf("connecting to redis: %v", err)
		os.Exit(2)
	}

	vecCfg, err := parseVectorDBURL(deployCfg.VectorDBURL)
	if err != nil {
		log.Fatalf("parsing VECTOR_DB_URL: %v", err)
	}
	vecCfg.Collection = getEnv("VECTOR_DB_COLLECTION", "knowledge_chunks")
	vecCfg.VectorSize = intEnv("VECTOR_DB_DIM", 1536)
	vectors, err := vectorindex.New(ctx, vecCfg)
	if err != nil {
		log.Printf("connecting to vector index: %v", err)
		os.Exit(2)
	}

	jobs := store.NewIngestJobRepo(dbClient.DB)
	chunks := store.NewChunkRepo(dbClient.DB, dbClient.Pool)
	users := store.NewUserRepo(dbClient.DB)
	roles := store.NewRoleRepo(dbClient.DB)
	apiKeys := store.NewAPIKeyRepo(dbClient.DB)
	auditRepo := store.NewAuditRepo(dbClient.DB)
	streamEvents := store.NewStreamEventRepo(dbClient.DB)

	chain := audit.New(auditRepo)

	embedder := embedding.New(embedding.Config{
		Endpoint: deployCfg.EmbeddingEndpoint,
		Model:    deployCfg.EmbeddingModel,
		APIKey:   os.Getenv("EMBEDDING_API_KEY"),
	})
	searchSvc := search.New(embedder, vectors, chunks)

	blobs := ingest.NewLocalBlobStore(getEnv("BLOB_STORE_ROOT", "./data/blobs"))
	registry := parser.NewRegistry()
	detectors := func(job *models.IngestJob) *pii.Detector {
		return pii.New(pii.WithExternalStore(job.Origin, cacheClient))
	}

	ingestCfg := ingest.DefaultConfig()
	ingestCfg.ChunkConfig.MaxChunkSize = deployCfg.ChunkSize
	ingestCfg.ChunkConfig.OverlapSize = deployCfg.ChunkOverlap

	coordinator := ingest.New(ingestCfg, registry, blobs, detectors, embedder, vectors, jobs, chunks, chain)
	pool := ingest.NewPool(ingest.DefaultPoolConfig(), coordinator, jobs)
	pool.Start(ctx)
	defer pool.Stop()

	issuer, err := rbac.NewTokenIssuer([]byte(deployCfg.JWTSecretKey), "analystcopilot", rbac.TokenTTL)
	if err != nil {
		log.Fatalf("building token issuer: %v", err)
	}
	authSvc := rbac.New(users, roles, apiKeys, issuer, cacheClient)

	m := metrics.New("ingest")

	exportSvc, err := export.New(getEnv("EXPORT_TEMP_DIR", ""))
	if err != nil {
		log.Fatalf("setting up export service: %v", err)
	}
	go exportSvc.RunSweeper(ctx, time.Hour, 24*time.Hour)

	manager := auditstream.NewConnectionManager(streamEvents, 10*time.Second)
	listener := auditstream.NewNotifyListener(dbCfg.DSN(), manager)
	manager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		log.Printf("starting audit stream listener: %v", err)
	}
	if err := listener.Subscribe(ctx, "ingest_jobs"); err != nil {
		log.Printf("subscribing to ingest_jobs channel: %v", err)
	}
	defer listener.Stop(context.Background())

	deps := &httpapi.Dependencies{
		Auth:           authSvc,
		Tokens:         issuer,
		Cache:          cacheClient,
		Jobs:           jobs,
		Chunks:         chunks,
		Blobs:          blobs,
		Search:         searchSvc,
		Export:         exportSvc,
		AuditChain:     chain,
		Stream:         manager,
		Metrics:        m,
		RateLimit:      httpapi.RateLimit{Limit: deployCfg.RateLimitRequests, Window: deployCfg.RateLimitWindow},
		MaxUploadBytes: deployCfg.MaxFileSize,
	}
	router := httpapi.NewIngestRouter(deps, httpapi.RouterConfig{AllowedOrigins: deployCfg.CORSOrigins})

	srv := &http.Server{
		Addr:    ":" + getEnv("HTTP_PORT", "8081"),
		Handler: router,
	}
	go func() {
		log.Printf("ingest-service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down ingest-service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}

func parseVectorDBURL(raw string) (vectorindex.Config, error) {
	host, portStr := raw, ""
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host, portStr = u.Hostname(), u.Port()
	} else if h, p, err := net.SplitHostPort(raw); err == nil {
		host, portStr = h, p
	}
	cfg := vectorindex.Config{Host: host}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return vectorindex.Config{}, err
		}
		cfg.Port = port
	}
	return cfg, nil
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
