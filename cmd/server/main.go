// Package main runs the recorder control service: HTTP API, UI
// websocket hub, preview subsystem and session machine, with graceful
// shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mBelstad/preke-r58-recorder-sub015/config"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/api"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/archive"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/auth"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/control"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/history"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/middleware"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/preview"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/realtime"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/session"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/database"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/queue"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/redis"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/response"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Take history is optional: the control surface runs without it.
	var takeRepo *history.Repository
	if cfg.Database.URL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		takeRepo = history.NewRepository(pool)
	}

	var (
		redisPubSub *realtime.RedisPubSub
		jobQueue    *queue.Queue
	)
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, running single-instance", zap.Error(err))
	} else {
		defer rdb.Close()
		redisPubSub = realtime.NewRedisPubSub(rdb.Client, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}

	var s3Client *storage.S3
	if cfg.AWS.ArchiveBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ArchiveBucket:   cfg.AWS.ArchiveBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(cfg.Auth.OperatorPasswordHash, jwtService, logger)

	var hub *realtime.Hub
	if redisPubSub != nil {
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}
	hub.Start()
	defer hub.Stop()

	recorder := control.NewClient(cfg.Recorder.BaseURL, cfg.Recorder.StartRetries, cfg.Recorder.RetryBackoff, logger)
	machine := session.NewMachine(recorder, logger)
	defer machine.Close()

	sink := preview.NewDrainSink(logger)
	transport := preview.NewWHEPTransport(cfg.Preview.WHEPURLTemplate, cfg.Preview.SignalTimeout)
	previews := preview.NewManager(transport, cfg.Preview.ICEUrls, sink, func(inputID string, st preview.State) {
		hub.BroadcastAndPublish("preview_state", map[string]interface{}{
			"input_id": inputID,
			"state":    st,
		})
	}, logger)
	defer previews.CloseAll()

	coord := preview.NewCoordinator(previews, machine.Status, cfg.Preview.SettleDelay, logger)
	machine.AddListener(coord.OnStatusChange)
	machine.AddListener(func(old, new models.Status) {
		hub.BroadcastAndPublish("recording_status", map[string]interface{}{
			"status":             new,
			"session":            machine.Session(),
			"duration_ms":        machine.Duration().Milliseconds(),
			"formatted_duration": machine.FormattedDuration(),
			"last_error":         machine.LastError(),
		})
	})

	// Seed the input list and open previews for everything with signal.
	if inputs, err := recorder.Inputs(ctx); err != nil {
		logger.Warn("initial input fetch failed", zap.Error(err))
	} else {
		machine.SetInputs(inputs)
		for _, in := range inputs {
			if in.HasSignal {
				previews.Open(in.ID)
			}
		}
	}

	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	feed := realtime.NewFeedConsumer(cfg.Recorder.StatusFeedURL, machine, hub, logger)
	go feed.Run(feedCtx)

	apiHandler := api.NewHandler(machine, previews, coord, recorder, takeRepo, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.POST("/auth/login", authHandler.Login)

	protected := router.Group("")
	protected.Use(middleware.JWT(jwtService))
	{
		protected.GET("/status", apiHandler.Status)
		protected.GET("/inputs", apiHandler.ListInputs)
		protected.GET("/inputs/signal", apiHandler.ListSignalInputs)
		protected.POST("/inputs/refresh", apiHandler.RefreshInputs)
		protected.POST("/inputs/:id/signal", apiHandler.UpdateInputSignal)

		protected.POST("/recording/start", apiHandler.StartRecording)
		protected.POST("/recording/stop", apiHandler.StopRecording)

		protected.GET("/previews", apiHandler.ListPreviews)
		protected.GET("/previews/:id", apiHandler.GetPreview)
		protected.POST("/previews/:id/open", apiHandler.OpenPreview)
		protected.POST("/previews/:id/close", apiHandler.ClosePreview)
		protected.POST("/previews/:id/retry", apiHandler.RetryPreview)
		protected.POST("/previews/:id/swap", apiHandler.SwapPreview)

		protected.GET("/takes", apiHandler.ListTakes)
		protected.GET("/takes/:id", apiHandler.GetTake)
	}

	validateToken := func(token string) error {
		_, err := jwtService.Validate(token)
		return err
	}
	router.GET("/ws", realtime.ServeWs(hub, logger, validateToken, realtime.Commands{
		StartRecording: func(name string) error { return machine.Start(context.Background(), name) },
		StopRecording: func() error {
			_, err := machine.Stop(context.Background())
			return err
		},
		RetryPreview: previews.Retry,
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process archive worker when both Redis and S3 are available.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil && jobQueue != nil && takeRepo != nil {
		worker := archive.NewWorker(cfg.Recorder.BaseURL, takeRepo, s3Client, jobQueue, logger)
		go worker.Run(workerCtx)
		logger.Info("archive worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	feedCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
