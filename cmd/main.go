package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"studio"
	"studio/internal/api/handler/endpoints"
	"studio/internal/api/handler/middleware"
	"studio/internal/api/models"
	"studio/internal/api/service"
	"studio/internal/api/websocket"
	"studio/internal/bridge"
	"studio/internal/realtime"
	"studio/pkg"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
)

func main() {
	studio.InitConfig(".env")
	cfg := studio.GetConfig()
	gin.SetMode(gin.ReleaseMode)
	if cfg.Mode == "dev" {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := models.DefaultRegistry()
	graphService := service.NewGraphService(registry, studio.Logger)

	progressService := service.NewProgressService(studio.Logger, pkg.RedisEnabled(), cfg.RedisConfig.TTL)
	progressService.Start()
	defer progressService.Stop()

	events := bridge.NewRouter()
	supervisor := bridge.NewSupervisor(bridge.ExecSpawner{
		Command: cfg.Worker.Command,
		Args:    cfg.Worker.Args,
		Dir:     cfg.Worker.Dir,
		Env:     []string{"PYTHONUNBUFFERED=1"},
	}, events.Dispatch, studio.Logger)

	sessionService := service.NewSessionService(supervisor, graphService, progressService, service.SessionOptions{
		RejectCycles: cfg.Validation.RejectCycles,
		ExportPath:   cfg.Export.DefaultPath,
	}, studio.Logger)

	hub := websocket.NewHub(studio.Logger)
	go hub.Run(ctx)
	progressService.OnEntry(hub.HandleLogEntry)
	studio.Logger.Info().Msg("WebSocket hub started")

	// Session first: the status pushed below must already include the event.
	events.Subscribe(sessionService.HandleEvent)
	events.Subscribe(progressService.HandleEvent)
	events.Subscribe(hub.HandleEvent)
	events.Subscribe(func(ev models.Event) {
		if ev.Tag() != models.EventBatchEnd {
			hub.Publish(websocket.NewStatusMessage(sessionService.Status()))
		}
	})

	if cfg.NatsConfig.Enabled {
		publisher, err := realtime.NewNATSPublisher(cfg.NatsConfig.URL, cfg.NatsConfig.Subject, studio.Logger)
		if err != nil {
			studio.Logger.Warn().Err(err).Msg("NATS unavailable, events stay local")
		} else {
			events.Subscribe(publisher.HandleEvent)
			defer publisher.Close()
			studio.Logger.Info().Str("subject", cfg.NatsConfig.Subject).Msg("Publishing events to NATS")
		}
	}

	if err := supervisor.Start(); err != nil {
		// The server still comes up so the editor works; POST /session/stop retries the spawn.
		studio.Logger.Error().Err(err).Str("command", cfg.Worker.Command).Msg("Worker failed to start")
	}
	defer supervisor.Stop()

	router, err := graceful.Default(graceful.WithAddr(cfg.ApiPort))
	if err != nil {
		panic(err)
	}
	defer router.Close()

	router.Use(middleware.MetricsMiddleware(), middleware.LoggerMiddleware(studio.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	processor := websocket.NewMessageProcessor(graphService, sessionService, progressService, studio.Logger)
	initAPI(router, registry, graphService, sessionService, progressService, supervisor, hub, processor)

	studio.Logger.Info().Msgf("Starting studio API on port %s", cfg.ApiPort)
	if err = router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		studio.Logger.Fatal().Err(err).Msg("Server stopped")
	}
}

func initAPI(
	router *graceful.Graceful,
	registry *models.Registry,
	graph *service.GraphService,
	session *service.SessionService,
	progress *service.ProgressService,
	supervisor *bridge.Supervisor,
	hub *websocket.Hub,
	processor *websocket.MessageProcessor,
) {
	endpoints.NodeTypeHandler(router, registry)
	endpoints.GraphHandler(router, graph, hub)
	endpoints.SessionHandler(router, session, progress, hub)
	endpoints.WebSocketHandler(router, hub, processor)
	endpoints.MetricsHandler(router, supervisor.IsRunning)
}
