package services

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"iazeconnect/internal/config"
	"iazeconnect/internal/gateway"
	"iazeconnect/internal/repositories"
)

// Container contém todos os serviços da aplicação
type Container struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Config *config.Config

	Gateway   *gateway.EvolutionClient
	Processed ProcessedSet

	// Serviços
	AuthService       *AuthService
	ConnectionService *ConnectionService
	IngestionService  *IngestionService
	TicketService     *TicketService
	HandoffService    *HandoffService
	FlowService       *FlowService
	Poller            *Poller
}

// NewContainer cria uma nova instância do container de serviços. notifier
// receives the live events (the websocket hub in the server).
func NewContainer(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, notifier Notifier) *Container {
	container := &Container{
		DB:     db,
		Redis:  redisClient,
		Config: cfg,
	}

	container.Gateway = gateway.NewEvolutionClient(gateway.EvolutionOptions{
		BaseURL:       cfg.EvolutionAPIURL,
		APIKey:        cfg.EvolutionAPIKey,
		Timeout:       cfg.GatewayTimeout,
		CreateTimeout: cfg.GatewayCreateTimeout,
	})

	if redisClient != nil {
		container.Processed = NewRedisProcessedSet(redisClient, cfg.ProcessedTTL)
	} else {
		container.Processed = NewMemoryProcessedSet(cfg.ProcessedTTL)
	}

	// Repositórios
	connectionRepo := repositories.NewConnectionRepository(db)
	supportRepo := repositories.NewSupportRepository(db)
	flowRepo := repositories.NewFlowRepository(db)

	container.AuthService = NewAuthService(cfg.JWTSecret)
	container.ConnectionService = NewConnectionService(connectionRepo, container.Gateway, cfg.RecreateWait)
	container.IngestionService = NewIngestionService(connectionRepo, supportRepo, container.Gateway, container.Processed, notifier, cfg.MessageFetchLimit)
	container.TicketService = NewTicketService(supportRepo, connectionRepo, container.Gateway, notifier)

	container.HandoffService = NewHandoffService(flowRepo, supportRepo, notifier)
	credentials := NewCredentialClient(cfg.CredentialAPIURL, cfg.CredentialAPIHash, cfg.GatewayCreateTimeout)
	container.FlowService = NewFlowService(flowRepo, credentials, container.HandoffService, cfg.FlowThrottleWindow, cfg.DefaultTenantID)

	container.Poller = NewPoller(container.ConnectionService, container.IngestionService, container.HandoffService, cfg.PollInterval, cfg.HandoffRetryInterval)

	return container
}
