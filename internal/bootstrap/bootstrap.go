// Package bootstrap wires configuration, storage, classification and the
// HTTP transport together and owns the service lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"coastwatch-server-go/internal/domain/auth"
	"coastwatch-server-go/internal/domain/classify"
	"coastwatch-server-go/internal/domain/eventbus"
	imagedomain "coastwatch-server-go/internal/domain/image"
	"coastwatch-server-go/internal/domain/locate"
	platformconfig "coastwatch-server-go/internal/platform/config"
	platformerrors "coastwatch-server-go/internal/platform/errors"
	platformlogging "coastwatch-server-go/internal/platform/logging"
	"coastwatch-server-go/internal/platform/storage"
	httptransport "coastwatch-server-go/internal/transport/http"
	httpauthapi "coastwatch-server-go/internal/transport/http/authapi"
	httpreportsapi "coastwatch-server-go/internal/transport/http/reportsapi"

	"gorm.io/gorm"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger
	db         *gorm.DB
	users      *storage.UserRepository
	reports    *storage.ReportRepository
	tokens     *auth.TokenManager
	classifier classify.Classifier
	cache      *redis.Client
	geocoder   *locate.Geocoder
}

// Run starts the whole service lifecycle: configuration, dependencies,
// the HTTP server and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		if state.classifier != nil {
			if closeErr := state.classifier.Close(); closeErr != nil {
				logger.ErrorTag("CLASSIFY", "classifier close failed: %v", closeErr)
			}
		}
		if state.cache != nil {
			if closeErr := state.cache.Close(); closeErr != nil {
				logger.WarnTag("GEOCODE", "redis close failed: %v", closeErr)
			}
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("http server start failed: %w", err)
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service stopped cleanly")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation overview")
	for _, step := range steps {
		logger.InfoTag("BOOT", "%s", step.Title)
	}
	logger.InfoTag("BOOT", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open report database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "cache:init-redis",
			Title:     "Connect geocode cache",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initRedisStep,
		},
		{
			ID:        "geocode:init-service",
			Title:     "Initialise reverse geocoder",
			DependsOn: []string{"cache:init-redis"},
			Kind:      platformerrors.KindLocation,
			Execute:   initGeocoderStep,
		},
		{
			ID:        "classify:init-classifier",
			Title:     "Initialise pollution classifier",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initClassifierStep,
		},
		{
			ID:        "auth:init-tokens",
			Title:     "Initialise token manager",
			DependsOn: []string{"storage:open-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAuthStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	platformlogging.Default = logger

	source := state.configPath
	if source == "" {
		source = "defaults"
	}
	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, source)
	return nil
}

func openDatabaseStep(_ context.Context, state *appState) error {
	db, err := storage.Open(state.config.Storage.DSN, state.logger)
	if err != nil {
		return err
	}
	state.db = db
	state.users = storage.NewUserRepository(db)
	state.reports = storage.NewReportRepository(db)
	return nil
}

func initRedisStep(ctx context.Context, state *appState) error {
	if !state.config.Redis.Enabled {
		state.logger.InfoTag("GEOCODE", "redis cache disabled, lookups go straight upstream")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     state.config.Redis.Addr,
		Username: state.config.Redis.Username,
		Password: state.config.Redis.Password,
		DB:       state.config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		state.logger.WarnTag("GEOCODE", "redis unreachable, continuing without cache: %v", err)
		_ = client.Close()
		return nil
	}
	state.cache = client
	state.logger.InfoTag("GEOCODE", "redis cache connected at %s", state.config.Redis.Addr)
	return nil
}

func initGeocoderStep(_ context.Context, state *appState) error {
	state.geocoder = locate.NewGeocoder(&state.config.Geocode, state.cache, state.config.Redis.Prefix, state.logger)
	return nil
}

func initClassifierStep(_ context.Context, state *appState) error {
	classifier, err := classify.New(&state.config.Classifier, state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "classify:init-classifier", "failed to create classifier", err)
	}
	state.classifier = classifier
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	secret := state.config.Server.Auth.Secret
	if secret == "" {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"auth:init-tokens",
			"auth secret is required",
		)
	}
	tokens := auth.NewTokenManager(secret)
	if expiry := state.config.Server.Auth.Expiry; expiry > 0 {
		tokens = tokens.WithTTL(expiry)
	}
	state.tokens = tokens
	return nil
}

func startHTTPServer(
	state *appState,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:         config,
		Logger:         logger,
		AuthMiddleware: httptransport.AuthMiddleware(state.tokens, state.users),
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API
	securedGroup := httpRouter.Secured

	pipeline, err := imagedomain.NewPipeline(imagedomain.Options{
		Security: &config.Security,
		Logger:   logger,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "http:init-image-pipeline", "failed to create image pipeline", err)
	}

	authService := httpauthapi.NewService(state.users, state.tokens, logger)
	reportsService := httpreportsapi.NewService(config, pipeline, state.classifier, state.reports, eventbus.Get(), logger)

	authService.Register(apiGroup, securedGroup)
	reportsService.Register(apiGroup, securedGroup)
	registerGeocodeRoute(apiGroup, state.geocoder)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			httptransport.RespondDetail(c, http.StatusNotFound, "Not found")
			return
		}
		c.File(config.Web.StaticDir + "/index.html")
	})

	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server closed gracefully")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// registerGeocodeRoute exposes the cached reverse geocoder so clients do not
// have to talk to the upstream service themselves.
func registerGeocodeRoute(api *gin.RouterGroup, geocoder *locate.Geocoder) {
	api.GET("/geocode/reverse", func(c *gin.Context) {
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
		if latErr != nil || lonErr != nil {
			httptransport.RespondDetail(c, http.StatusUnprocessableEntity, "lat and lon are required")
			return
		}
		name, err := geocoder.ReverseLookup(c.Request.Context(), lat, lon)
		if err != nil {
			httptransport.RespondDetail(c, http.StatusBadGateway, "reverse geocoding unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name})
	})
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "received %v, cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}
