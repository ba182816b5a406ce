package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/config"
)

// Server hosts the websocket endpoint and the health probe. Metrics are
// scraped from a separate plain net/http listener (see cmd).
type Server struct {
	app        *fiber.App
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger
}

func New(cfg *config.Config, dispatcher *Dispatcher, logger *zap.SugaredLogger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})
	s := &Server{app: app, dispatcher: dispatcher, logger: logger}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	return s
}

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) handleWS(conn *websocket.Conn) {
	s.dispatcher.HandleConn(conn)
}
