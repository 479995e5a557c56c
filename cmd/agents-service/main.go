// Command agents-service runs the HTTP surface for the workflow engine:
// job creation, suspend/resume on clarifying answers, status, and results.
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
	"github.com/analystcopilot/core/pkg/httpapi"
	"github.com/analystcopilot/core/pkg/llmclient"
	"github.com/analystcopilot/core/pkg/metrics"
	"github.com/analystcopilot/core/pkg/otelsetup"
	"github.com/analystcopilot/core/pkg/rbac"
	"github.com/analystcopilot/core/pkg/search"
	"github.com/analystcopilot/core/pkg/stages"
	"github.com/analystcopilot/core/pkg/store"
	"github.com/analystcopilot/core/pkg/vectorindex"
	"github.com/analystcopilot/core/pkg/workflow"
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
		ServiceName: "agents-service",
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
	vectors, err := vectorindex.New(ctx, vecCfg)
	if err != nil {
		log.Printf("connecting to vector index: %v", err)
		os.Exit(2)
	}

	chunks := store.NewChunkRepo(dbClient.DB, dbClient.Pool)
	users := store.NewUserRepo(dbClient.DB)
	roles := store.NewRoleRepo(dbClient.DB)
	apiKeys := store.NewAPIKeyRepo(dbClient.DB)
	auditRepo := store.NewAuditRepo(dbClient.DB)
	workflows := store.NewWorkflowRepo(dbClient.DB)
	streamEvents := store.NewStreamEventRepo(dbClient.DB)

	chain := audit.New(auditRepo)

	embedder := embedding.New(embedding.Config{
		Endpoint: deployCfg.EmbeddingEndpoint,
		Model:    deployCfg.EmbeddingModel,
		APIKey:   os.Getenv("EMBEDDING_API_KEY"),
	})
	searchSvc := search.New(embedder, vectors, chunks)

	llm := llmclient.New(llmclient.Config{
		Endpoint:    deployCfg.LLMEndpoint,
		Model:       deployCfg.LLMModel,
		APIKey:      os.Getenv("LLM_API_KEY"),
		Temperature: deployCfg.LLMTemperature,
		MaxTokens:   deployCfg.LLMMaxTokens,
	})
	collab := stages.Collaborators{LLM: llm, Search: searchSvc, Audit: chain}
	engine := workflow.New(workflow.DefaultConfig(), workflows, collab)

	issuer, err := rbac.NewTokenIssuer([]byte(deployCfg.JWTSecretKey), "analystcopilot", rbac.TokenTTL)
	if err != nil {
		log.Fatalf("building token issuer: %v", err)
	}
	authSvc := rbac.New(users, roles, apiKeys, issuer, cacheClient)

	m := metrics.New("agents")

	manager := auditstream.NewConnectionManager(streamEvents, 10*time.Second)
	listener := auditstream.NewNotifyListener(dbCfg.DSN(), manager)
	manager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		log.Printf("starting audit stream listener: %v", err)
	}
	if err := listener.Subscribe(ctx, "workflow_executions"); err != nil {
		log.Printf("subscribing to workflow_executions channel: %v", err)
	}
	defer listener.Stop(context.Background())

	deps := &httpapi.Dependencies{
		Auth:       authSvc,
		Tokens:     issuer,
		Cache:      cacheClient,
		Search:     searchSvc,
		Workflows:  workflows,
		Engine:     engine,
		AuditChain: chain,
		Stream:     manager,
		Metrics:    m,
		RateLimit:  httpapi.RateLimit{Limit: deployCfg.RateLimitRequests, Window: deployCfg.RateLimitWindow},
	}
	router := httpapi.NewAgentsRouter(deps, httpapi.RouterConfig{AllowedOrigins: deployCfg.CORSOrigins})

	srv := &http.Server{
		Addr:    ":" + getEnv("HTTP_PORT", "8082"),
		Handler: router,
	}
	go func() {
		log.Printf("agents-service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down agents-service")
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
