package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/handlers"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/access"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/config"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/database"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/cache"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/handler"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/handout"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/markdown"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/repository"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/oidc"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/profiles"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/seed"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/storage"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/tokens"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/metrics"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: store=%s keycloak=%v redis=%v minio=%v", cfg.Store.Driver, cfg.Keycloak.URL != "", cfg.Redis.Addr() != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Check{}

	// Redis backs the list cache, token revocation and the shared rate limiter.
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("connected to Redis at %s", addr)
		}
		sessions.SetRevocationClient(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		defer rdb.Close()
	}

	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			if cfg.Store.Driver == config.DriverMongo {
				logger.Fatalf("%v", err)
			}
			logger.Warnf("%v; profiles fall back to memory", err)
		} else {
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		}
	}

	store, closeStore, err := repository.Open(ctx, cfg, mongoClient)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer closeStore()
	checks["store"] = store.Ping

	var listCache cache.ListCache
	if rdb != nil {
		listCache = cache.NewRedisCache(rdb, "", cfg.Cache.ListTTL)
	} else {
		listCache = cache.NewMemoryCache(cfg.Cache.ListTTL)
	}
	go watchInvalidations(ctx, listCache)

	docs := service.New(store, listCache)

	var profileRepo profiles.Repository
	if mongoClient != nil {
		profileRepo = profiles.NewMongoRepository(mongoClient.Database(cfg.MongoDB.Database))
	} else {
		profileRepo = profiles.NewMemoryRepository()
	}
	profileSvc := profiles.NewService(profileRepo)

	devMode := cfg.Server.Environment == "development"
	if devMode {
		if _, err := seed.Run(ctx, profileRepo, docs); err != nil {
			logger.Warnf("seeding development clinic failed: %v", err)
		}
	}

	authz, err := access.NewAuthorizer()
	if err != nil {
		logger.Fatalf("failed to load access policies: %v", err)
	}

	renderer := markdown.NewRenderer()
	var publisher handler.Publisher
	if cfg.MinIO.Endpoint != "" {
		objects, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			logger.Fatalf("failed to configure MinIO: %v", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Warnf("MinIO bucket %s: %v", cfg.MinIO.Bucket, err)
		}
		publisher = handout.NewPublisher(objects, renderer, cfg.MinIO.HandoutTTL)
		checks["minio"] = objects.EnsureBucket
	} else {
		logger.Infof("MINIO_ENDPOINT not set; patient handouts are disabled")
	}

	idTokens, verifier := newVerifiers(ctx, cfg)

	if !devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS(cfg.Server.CORSOrigin))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterHealth(r, checks)
	handlers.RegisterSwagger(r)

	login := handlers.NewAuthHandler(cfg, idTokens, profileSvc)
	if devMode {
		login.WithMockLogin(seed.MockLogin)
	}
	login.Register(r)

	if verifier == nil {
		logger.Warnf("no token verifier configured (set JWT_SECRET, KEYCLOAK_URL or ALLOW_INSECURE_TOKEN); document API disabled")
	} else {
		api := r.Group("/", middleware.AuthMiddleware(verifier))
		if cfg.RateLimit.Enabled {
			if cfg.RateLimit.UseRedis && rdb != nil {
				win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
				api.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
			} else {
				api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			}
		}
		handler.RegisterDocumentRoutes(api, handler.Deps{
			Documents:  docs,
			Profiles:   profileSvc,
			Authorizer: authz,
			Renderer:   renderer,
			Handouts:   publisher,
		})
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting document service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}

// newVerifiers returns the Keycloak id-token verifier used at sign-in and the
// verifier guarding the API: locally signed tokens when JWT_SECRET is set,
// otherwise Keycloak tokens, otherwise (integration only) unverified tokens.
func newVerifiers(ctx context.Context, cfg *config.Config) (idTokens, api middleware.Verifier) {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.Realm != "" && cfg.Keycloak.ClientID != "" {
		ver, err := oidc.NewVerifier(ctx, oidc.IssuerURL(cfg.Keycloak), cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			idTokens = ver
		}
	}
	switch {
	case cfg.JWT.Secret != "":
		api = tokens.NewHMACVerifier(cfg.JWT.Secret)
	case idTokens != nil:
		api = idTokens
	case cfg.JWT.AllowInsecure:
		logger.Warnf("enabling insecure token verifier (integration mode)")
		api = oidc.NewInsecureVerifier()
	}
	if idTokens == nil && cfg.JWT.AllowInsecure {
		idTokens = oidc.NewInsecureVerifier()
	}
	return idTokens, api
}

// watchInvalidations logs every document list invalidation, including those
// published by other instances.
func watchInvalidations(ctx context.Context, lc cache.ListCache) {
	cache.Watch(ctx, lc, func(inv document.Invalidation) {
		logger.L().Debug().
			Str("route", inv.Route).
			Str("clinic_id", inv.ClinicID).
			Str("document_id", inv.DocumentID).
			Str("op", inv.Op).
			Msg("document list invalidated")
	}, time.Second, time.Minute)
}
