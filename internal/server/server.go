// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"

	_ "vibely/docs" // swagger docs
	"vibely/internal/cache"
	"vibely/internal/config"
	"vibely/internal/database"
	"vibely/internal/featureflags"
	"vibely/internal/middleware"
	"vibely/internal/models"
	"vibely/internal/notifications"
	"vibely/internal/repository"
	"vibely/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// hub is a websocket hub the server fans Redis changes into and drains on
// shutdown.
type hub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server owns the API's dependencies and implements its handlers.
type Server struct {
	config  *config.Config
	db      *gorm.DB
	redis   *redis.Client
	app     *fiber.App
	prom    *fiberprometheus.FiberPrometheus
	limiter *middleware.Limiter

	// cancelled by Shutdown; bounds the hub wiring goroutines
	runCtx    context.Context
	cancelRun context.CancelFunc

	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	chatRepo    repository.ChatRepository
	imageRepo   repository.ImageRepository

	featureFlags   *featureflags.Manager
	postService    *service.PostService
	commentService *service.CommentService
	chatService    *service.ChatService
	userService    *service.UserService
	imageService   *service.ImageService

	notifier *notifications.Notifier
	chatHub  *notifications.ChatHub
	hubs     []hub
}

// NewServer connects to the configured database and Redis and builds a Server
// on top of them. Redis being unreachable is not fatal.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps builds a Server from an open database and an optional
// Redis client.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("server: database is required")
	}

	s := &Server{
		config:       cfg,
		db:           db,
		redis:        rdb,
		prom:         middleware.InitMetrics("vibely-api"),
		limiter:      middleware.NewLimiter(rdb, cfg.Env),
		featureFlags: featureflags.NewManager(cfg.FeatureFlags),

		userRepo:    repository.NewUserRepository(db),
		postRepo:    repository.NewPostRepository(db),
		commentRepo: repository.NewCommentRepository(db),
		chatRepo:    repository.NewChatRepository(db),
		imageRepo:   repository.NewImageRepository(db),
	}

	s.postService = service.NewPostService(s.postRepo, s.featureFlags, cfg.FeedPageSize)
	s.commentService = service.NewCommentService(s.commentRepo, s.postRepo)
	s.chatService = service.NewChatService(s.chatRepo, s.userRepo, s.featureFlags, cfg.ChatSnapshotLimit)
	s.userService = service.NewUserService(s.userRepo)
	s.imageService = service.NewImageService(s.imageRepo, cfg)

	s.chatHub = notifications.NewChatHub(s.loadChatSnapshot, s.chatService.Authorize)
	s.hubs = []hub{s.chatHub}

	// With Redis, changes go through pub/sub so every instance's hub sees
	// them; without it the local hub is told directly.
	if rdb != nil {
		s.notifier = notifications.NewNotifier(rdb)
		s.chatService.SetPublisher(s.notifier)
	} else {
		s.chatService.SetPublisher(s.chatHub)
	}

	return s, nil
}

func (s *Server) loadChatSnapshot(ctx context.Context, key string) (map[string]*models.ChatMessage, error) {
	snap, err := s.chatService.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return snap.Messages, nil
}

// newApp returns the Fiber app with the API's error handler and body limit.
func (s *Server) newApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "Vibely API",
		BodyLimit:    (s.imageLimitMB() + 1) << 20,
		ErrorHandler: s.handleError,
	})
}

// handleError renders errors that escaped a handler. Fiber's own errors keep
// their status; anything else is a 500 without internals.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message, Message: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// Start serves the API on the configured port until Shutdown.
func (s *Server) Start() error {
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())

	s.app = s.newApp()
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	s.wireHubs()

	middleware.Logger.Info("server starting", "port", s.config.Port, "env", s.config.Env)
	return s.app.Listen(":" + s.config.Port)
}

// wireHubs subscribes each hub to Redis change notifications.
func (s *Server) wireHubs() {
	if s.notifier == nil {
		return
	}
	for _, h := range s.hubs {
		go func() {
			if err := h.StartWiring(s.runCtx, s.notifier); err != nil {
				middleware.Logger.Error("hub wiring failed", "hub", h.Name(), "error", err)
			}
		}()
	}
}

func (s *Server) imageLimitMB() int {
	if s.config.ImageMaxMB > 0 {
		return s.config.ImageMaxMB
	}
	return service.DefaultImageMaxUploadSizeMB
}

// Shutdown stops accepting requests, closes websocket clients and releases
// the database and Redis connections. Failures are logged and the remaining
// steps still run.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelRun != nil {
		s.cancelRun()
	}

	var errs []error
	if s.app != nil {
		errs = append(errs, s.app.ShutdownWithContext(ctx))
	}
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}

	if err := errors.Join(errs...); err != nil {
		middleware.Logger.Error("shutdown finished with errors", "error", err)
	} else {
		middleware.Logger.Info("shutdown complete")
	}
	return nil
}
