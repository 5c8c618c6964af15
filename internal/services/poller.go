package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"iazeconnect/internal/models"
)

// Poller agenda os trabalhos de fundo: reconciliação + ingestão, reenvio de
// handoffs e a virada diária dos contadores. Connections are processed one
// after the other inside a run.
type Poller struct {
	cron       *cron.Cron
	connection *ConnectionService
	ingestion  *IngestionService
	handoff    *HandoffService

	pollInterval  time.Duration
	retryInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewPoller(connection *ConnectionService, ingestion *IngestionService, handoff *HandoffService, pollInterval, retryInterval time.Duration) *Poller {
	logger := cronLogger{log: zap.S().Named("cron")}
	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		connection:    connection,
		ingestion:     ingestion,
		handoff:       handoff,
		pollInterval:  pollInterval,
		retryInterval: retryInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start registers the jobs and starts the scheduler
func (p *Poller) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{every(p.pollInterval), "poll", func() { p.RunOnce(p.ctx) }},
		{every(p.retryInterval), "handoff-retry", func() { p.retryHandoffs(p.ctx) }},
		{"0 0 * * *", "daily-reset", p.resetCounters},
	}

	for _, job := range jobs {
		if _, err := p.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("agendar %s (%s): %w", job.name, job.spec, err)
		}
	}

	p.cron.Start()
	zap.L().Info("[POLLER] Agendador iniciado",
		zap.Duration("poll_interval", p.pollInterval), zap.Duration("handoff_retry_interval", p.retryInterval))
	return nil
}

// Stop cancels running work and waits for the jobs to return or ctx to end
func (p *Poller) Stop(ctx context.Context) {
	p.once.Do(func() {
		p.cancel()
		select {
		case <-p.cron.Stop().Done():
		case <-ctx.Done():
		}
		zap.L().Info("[POLLER] Agendador parado")
	})
}

func every(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return "@every " + d.String()
}

// RunOnce reconciles every registered connection and ingests the connected
// ones. A failure on one connection never stops the others.
func (p *Poller) RunOnce(ctx context.Context) {
	connections, err := p.connection.ListAll()
	if err != nil {
		zap.L().Error("[POLLER] Falha ao listar conexões", zap.Error(err))
		return
	}

	for i := range connections {
		if ctx.Err() != nil {
			return
		}
		p.process(ctx, &connections[i])
	}
}

func (p *Poller) process(ctx context.Context, connection *models.Connection) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("[POLLER] Panic ao processar conexão",
				zap.String("instance", connection.InstanceName), zap.Any("panic", r))
		}
	}()

	status, err := p.connection.Reconcile(ctx, connection)
	if err != nil {
		zap.L().Warn("[POLLER] Reconciliação falhou", zap.String("instance", connection.InstanceName), zap.Error(err))
		return
	}
	if status != models.ConnectionStatusConnected {
		return
	}

	applied, err := p.ingestion.Ingest(ctx, connection)
	if err != nil {
		zap.L().Warn("[POLLER] Ingestão falhou", zap.String("instance", connection.InstanceName), zap.Error(err))
		return
	}
	if applied > 0 {
		zap.L().Info("[POLLER] Mensagens novas", zap.String("instance", connection.InstanceName), zap.Int("count", applied))
	}
}

func (p *Poller) retryHandoffs(ctx context.Context) {
	delivered, err := p.handoff.RetryPending(ctx)
	if err != nil {
		zap.L().Error("[POLLER] Falha ao reenviar handoffs", zap.Error(err))
	}
	if delivered > 0 {
		zap.L().Info("[POLLER] Handoffs entregues", zap.Int("count", delivered))
	}
}

func (p *Poller) resetCounters() {
	affected, err := p.connection.ResetDailyCounters()
	if err != nil {
		zap.L().Error("[POLLER] Falha ao zerar contadores", zap.Error(err))
		return
	}
	zap.L().Info("[POLLER] Contadores diários zerados", zap.Int64("connections", affected))
}

// cronLogger adapts zap to cron's logger
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
