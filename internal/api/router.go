package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ankit/closepilot/internal/api/handler"
	"github.com/ankit/closepilot/internal/api/middleware"
	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/registry"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Closing    handler.BatchStarter
	Registry   *registry.Registry
	Finalize   handler.EventSink
	CRM        handler.OpportunityReader
	History    handler.HistorySearcher
	Classifier handler.IntentClassifier
	Logger     *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, serverCfg config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  serverCfg.CORS.AllowedOrigins,
		AllowAllOrigins: serverCfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	closingHandler := handler.NewClosingHandler(deps.Closing, deps.Registry)
	webhookHandler := handler.NewWebhookHandler(deps.Finalize)
	opportunityHandler := handler.NewOpportunityHandler(deps.CRM)
	historyHandler := handler.NewHistoryHandler(deps.History)
	chatHandler := handler.NewChatHandler(deps.Classifier, deps.CRM, deps.Closing)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Closing pipeline
	r.POST("/start-closing", closingHandler.StartClosing)
	r.GET("/task-status/:job_id", closingHandler.TaskStatus)

	// Signature provider callback
	r.POST("/webhook", webhookHandler.Receive)

	// Contact maintenance
	r.POST("/update-contact", opportunityHandler.UpdateContact)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/opportunities", opportunityHandler.List)
		v1.GET("/history", historyHandler.Search)
		v1.POST("/chat", chatHandler.Chat)
	}

	return r
}
