package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"iazeconnect/internal/handlers"
	"iazeconnect/internal/middleware"
	"iazeconnect/internal/services"
)

// Setup configura todas as rotas da aplicação
func Setup(container *services.Container, hub *handlers.Hub) *gin.Engine {
	r := gin.New()

	// Configurar CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = container.Config.CORSOrigins
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"http://localhost:3000"}
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.AllowCredentials = true
	r.Use(cors.New(config))

	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// Inicializar handlers
	connectionHandler := handlers.NewConnectionHandler(container.ConnectionService)
	ticketHandler := handlers.NewTicketHandler(container.TicketService)
	flowHandler := handlers.NewFlowHandler(container.FlowService)
	webhookHandler := handlers.NewEvolutionWebhookHandler(container.ConnectionService, container.IngestionService)

	// Rotas públicas
	public := r.Group("/api")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok", "message": "IAZE Connect API"})
		})

		// Fluxo de teste grátis da página de vendas (visitante anônimo)
		flow12 := public.Group("/vendas/flow12")
		{
			flow12.POST("/sessions", flowHandler.StartSession)
			flow12.GET("/sessions/:id", flowHandler.GetSession)
			flow12.POST("/sessions/:id/messages", flowHandler.SendMessage)
		}
	}

	// WebSocket (JWT via query param)
	r.GET("/ws", hub.HandleWebSocket(container.AuthService))

	// Webhook da Evolution API
	r.POST("/webhook/evolution", webhookHandler.ProcessWebhook)

	// Rotas protegidas
	protected := r.Group("/api")
	protected.Use(middleware.AuthMiddleware(container.AuthService))
	{
		connections := protected.Group("/connections")
		{
			connections.GET("", connectionHandler.ListConnections)
			connections.POST("", connectionHandler.CreateConnection)
			connections.GET("/:id", connectionHandler.GetConnection)
			connections.POST("/:id/qrcode", connectionHandler.RefreshQRCode)
			connections.DELETE("/:id", middleware.AdminMiddleware(), connectionHandler.DeleteConnection)
		}

		tickets := protected.Group("/tickets")
		{
			tickets.GET("", ticketHandler.ListTickets)
			tickets.GET("/:id/messages", ticketHandler.ListMessages)
			tickets.POST("/:id/messages", ticketHandler.SendMessage)
		}
	}

	return r
}
