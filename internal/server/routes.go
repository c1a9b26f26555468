package server

import (
	"strings"
	"time"

	"vibely/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
)

const defaultOrigins = "http://localhost:8081,http://localhost:19006"

// Per-action quotas, counted in Redis per user (or per IP before login).
var (
	limitSignup  = middleware.Limit{Name: "signup", Max: 3, Window: 10 * time.Minute}
	limitLogin   = middleware.Limit{Name: "login", Max: 10, Window: 5 * time.Minute}
	limitUpload  = middleware.Limit{Name: "image_upload", Max: 20, Window: time.Minute}
	limitPost    = middleware.Limit{Name: "create_post", Max: 10, Window: 5 * time.Minute}
	limitComment = middleware.Limit{Name: "create_comment", Max: 10, Window: time.Minute}
	limitSearch  = middleware.Limit{Name: "search", Max: 30, Window: time.Minute}
	limitChat    = middleware.Limit{Name: "send_chat", Max: 30, Window: time.Minute}
)

// SetupMiddleware installs the global middleware chain. Order matters:
// request ids come before anything that logs, and CORS before the limiter so
// rejected requests still carry CORS headers.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	app.Use(middleware.ContextMiddleware())
	if s.prom != nil {
		app.Use(middleware.MetricsMiddleware(s.prom))
	}

	// images are embedded cross-origin by the mobile client
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           int((24 * time.Hour).Seconds()),
	}))

	// coarse per-IP ceiling, kept in process memory
	app.Use(limiter.New(limiter.Config{
		Max:          100,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/media/")
		},
		LimitReached: func(c *fiber.Ctx) error {
			const msg = "Too many requests, please try again later."
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": msg, "message": msg})
		},
	}))
}

// SetupRoutes registers every endpoint. Within a group, literal segments are
// registered before parameterized siblings.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.ReadinessCheck)
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.prom != nil {
		s.prom.RegisterAt(app, "/metrics")
	}
	app.Get("/media/i/:hash/:file", s.ServeImage)

	api := app.Group("/api")
	api.Get("/", s.HealthCheck)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "Vibely API Metrics Dashboard"}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	rl := s.limiter.Handler
	auth := s.AuthRequired()

	a := api.Group("/auth")
	a.Post("/signup", rl(limitSignup), s.Signup)
	a.Post("/login", rl(limitLogin), s.Login)
	a.Post("/logout", auth, s.Logout)
	a.Get("/me", auth, s.Me)

	api.Get("/posts/feed", s.GetFeed)
	api.Get("/posts/:id", s.GetPost)
	api.Post("/images/upload", s.ImageHostAuth(), rl(limitUpload), s.UploadImage)
	api.Post("/ws/ticket", auth, s.IssueWSTicket)
	api.Get("/ws/chat", auth, requireUpgrade, s.WebSocketChatHandler())

	p := api.Group("", auth)

	p.Post("/posts", rl(limitPost), s.CreatePost)
	p.Delete("/posts/:id", s.DeletePost)

	act := p.Group("/actions/posts/:id")
	act.Post("/like", s.LikePost)
	act.Get("/comments", s.GetComments)
	act.Post("/comment", rl(limitComment), s.CreateComment)
	act.Post("/comments/:commentId/like", s.LikeComment)
	act.Delete("/comments/:commentId", s.DeleteComment)

	inbox := p.Group("/inbox")
	inbox.Get("/chats", s.GetChats)
	inbox.Get("/users/:id", s.GetUser)
	inbox.Get("/:username", rl(limitSearch), s.SearchUsers)

	p.Put("/account/update", s.UpdateAccount)

	chats := p.Group("/chats/:key")
	chats.Get("/messages", s.GetMessages)
	chats.Post("/messages", rl(limitChat), s.SendMessage)
}
