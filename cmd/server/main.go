package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/worship-room-service/internal/auth"
	"github.com/worship-room-service/internal/playlist"
	"github.com/worship-room-service/internal/room"
	"github.com/worship-room-service/internal/scheduler"
	"github.com/worship-room-service/internal/ws"
	"github.com/worship-room-service/internal/youtube"
	"github.com/worship-room-service/pkg/config"
	"github.com/worship-room-service/pkg/database"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/jwt"
	"github.com/worship-room-service/pkg/metrics"
	"github.com/worship-room-service/pkg/redis"
)

type store interface {
	room.Store
	playlist.Store
}

// localRelay hands events to the websocket hub, which is built after the
// coordinator it serves.
type localRelay struct {
	hub *ws.Handler
}

func (r *localRelay) Publish(ctx context.Context, evts ...events.Event) error {
	return r.hub.Publish(ctx, evts...)
}

func openStore(cfg *config.Config) (store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return database.NewPostgresDB(cfg.DatabaseURL)
	case config.DriverMemory:
		log.Println("Warning: using in-memory storage, rooms are lost on restart")
		return database.NewMemoryDB(), nil
	default:
		return database.NewMySQLDB(cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// Without brokers the coordinator publishes straight to this instance's
	// sockets.
	var kafkaClient *events.KafkaClient
	relay := &localRelay{}
	var publisher room.Publisher = relay
	if cfg.KafkaEnabled() {
		kafkaClient = events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer kafkaClient.Close()
		publisher = kafkaClient
	}

	coordinator := room.NewCoordinator(db, publisher,
		room.WithSnapshotCache(redis.NewRoomCache(redisClient, cfg.SnapshotCacheTTL)),
		room.WithThrottler(redis.NewThrottle(redisClient, "chat")),
	)

	// A nil *youtube.Client must not end up inside the interface.
	var videos room.VideoLookup
	var playlistVideos playlist.VideoLookup
	if yt := youtube.NewClient(cfg.YouTubeAPIKey); yt.Enabled() {
		videos, playlistVideos = yt, yt
	} else {
		log.Println("Warning: YOUTUBE_API_KEY not set, video metadata comes from clients")
	}

	tokens := jwt.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry)
	sessions := redis.NewSessionStore(redisClient)

	authHandler := auth.NewHandler(tokens, sessions, cfg.IsProduction())
	roomHandler := room.NewHandler(room.NewService(coordinator, videos))
	playlistHandler := playlist.NewHandler(playlist.NewService(db, playlistVideos))
	wsHandler := ws.NewHandler(coordinator, cfg.AllowedOrigins)
	relay.hub = wsHandler

	if kafkaClient != nil {
		go relayEvents(ctx, wsHandler, kafkaClient)
	}

	jobs := scheduler.New(coordinator, scheduler.Config{
		SweepSchedule: cfg.SweepSchedule,
		EvictSchedule: cfg.EvictSchedule,
		IdleTimeout:   cfg.IdleTimeout,
	})
	if err := jobs.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"loaded_rooms": len(coordinator.LoadedRooms()),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(auth.AuthMiddleware(tokens, sessions))
	{
		roomHandler.RegisterRoutes(protected)
		playlistHandler.RegisterRoutes(protected)
		wsHandler.RegisterRoutes(protected)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	jobs.Stop()
	coordinator.Shutdown()
	log.Println("Server stopped")
}

// relayEvents keeps the broker consumer running, backing off after errors.
func relayEvents(ctx context.Context, hub *ws.Handler, consumer ws.Consumer) {
	for {
		if err := hub.Run(ctx, consumer); err != nil {
			log.Printf("Event relay stopped: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}
