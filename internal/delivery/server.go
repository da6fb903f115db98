package delivery

import (
	"log"

	"agentlink/internal/config"
	"agentlink/internal/infrastructure/kafka"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

type Server struct {
	config        *config.Config
	kafkaConsumer *kafka.KafkaConsumer
	producer      EventProducer
	hub           *Hub
}

func NewServer(config *config.Config, kafkaConsumer *kafka.KafkaConsumer, producer EventProducer, hub *Hub) *Server {
	return &Server{
		config:        config,
		kafkaConsumer: kafkaConsumer,
		producer:      producer,
		hub:           hub,
	}
}

func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "AgentLink WebSocket & REST Server",
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Access-Control-Request-Method,Access-Control-Request-Headers",
		ExposeHeaders:    "Content-Length,Access-Control-Allow-Origin,Access-Control-Allow-Headers,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400, // 24 hours
	}

	// Set origins based on environment
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		log.Printf("CORS configured for production with origins: %s", corsConfig.AllowOrigins)
	} else {
		corsConfig.AllowOrigins = "*"
		corsConfig.AllowCredentials = false // Never allow credentials with wildcard origin
		log.Printf("CORS configured for development with wildcard origin")
	}

	app.Use(cors.New(corsConfig))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":             "ok",
			"message":            "AgentLink server is running",
			"port":               s.config.Port,
			"environment":        s.config.Environment,
			"active_connections": s.hub.GetActiveConnectionCount(),
		})
	})

	// REST API routes
	api := app.Group("/api")
	api.Post("/chats/:chat_id/messages", s.handleSendMessage)
	api.Get("/agents/online", s.handleGetOnlineAgents)

	// WebSocket middleware: require an upgrade and a session token
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if c.Get("Authorization") == "" && c.Query("token") == "" {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	})

	// WebSocket route
	app.Get("/ws/:user_id/:user_type", websocket.New(func(c *websocket.Conn) {
		userID, userType := c.Params("user_id"), c.Params("user_type")
		s.hub.HandleConnection(c, userID, userType)
	}))

	log.Printf("AgentLink server (WebSocket + REST) starting on port %s", s.config.Port)
	return app.Listen(":" + s.config.Port)
}
