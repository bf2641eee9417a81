package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadflowhq/leadflow/channel"
	"github.com/leadflowhq/leadflow/config"
	"github.com/leadflowhq/leadflow/engine"
	"github.com/leadflowhq/leadflow/logger"
	"github.com/leadflowhq/leadflow/persistence"
	"github.com/leadflowhq/leadflow/persistence/inmem"
	"github.com/leadflowhq/leadflow/persistence/postgres"
	"github.com/leadflowhq/leadflow/rest"
	"github.com/leadflowhq/leadflow/util"
	"go.uber.org/zap"
)

// Agent wires the engine together: storage, channels, trigger evaluation,
// the step-processing poller and the http surface. All dependencies are
// injected here; nothing is constructed at import time.
type Agent struct {
	Config config.Config

	pool          *pgxpool.Pool
	redisClient   rd.UniversalClient
	storage       persistence.Storage
	leads         channel.LeadStore
	agents        channel.AgentStore
	tasks         channel.TaskStore
	notifications channel.NotificationStore
	outbound      channel.Channel

	trigger   *engine.TriggerEvaluator
	processor *engine.StepProcessor
	selector  *engine.TemplateSelector
	poller    *util.TickWorker

	httpServer *rest.Server

	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(cfg config.Config) (*Agent, error) {
	a := &Agent{
		Config: cfg,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupChannels,
		a.setupEngine,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_POSTGRES:
		pool, err := postgres.NewPool(context.Background(), a.Config.PostgresConfig.URL)
		if err != nil {
			return err
		}
		a.pool = pool
		a.storage = postgres.NewStorage(pool)
	case config.STORAGE_TYPE_INMEM:
		a.storage = inmem.NewStorage()
	default:
		return fmt.Errorf("unknown storage type %q", a.Config.StorageType)
	}
	return nil
}

func (a *Agent) setupChannels() error {
	if a.pool != nil {
		crm := postgres.NewCRMStore(a.pool)
		a.leads = crm
		a.agents = crm.Agents()
		a.tasks = crm
		a.notifications = crm.Notifications()
	} else {
		crm := inmem.NewCRMStore()
		a.leads = crm
		a.agents = crm.Agents()
		a.tasks = crm
		a.notifications = crm.Notifier()
	}
	a.redisClient = rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs: a.Config.RedisConfig.Addrs,
	})
	a.outbound = channel.NewRedisChannel(a.redisClient, a.Config.RedisConfig.Namespace)
	return nil
}

func (a *Agent) setupEngine() error {
	a.selector = engine.NewTemplateSelector(a.storage, time.Duration(a.Config.TemplateCacheTTL)*time.Second)
	variants := engine.NewVariantSelector(a.storage)
	renderer := engine.NewTemplateRenderer()
	a.trigger = engine.NewTriggerEvaluator(a.storage)
	a.processor = engine.NewStepProcessor(a.storage, a.leads, a.agents, a.tasks, a.notifications,
		a.outbound, a.selector, variants, renderer, a.Config.ProcessBatchSize)

	interval := time.Duration(a.Config.PollIntervalSec) * time.Second
	a.poller = util.NewTickWorker("step-processor", interval, func() {
		result, err := a.processor.ProcessPending(context.Background())
		if err != nil {
			return
		}
		if result.Processed > 0 {
			logger.Info("processed pending executions", zap.Int("count", result.Processed))
		}
	}, &a.wg)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.storage, a.trigger, a.selector)
	return err
}

func (a *Agent) Start() error {
	a.poller.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	a.poller.Stop()
	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logger.Error("error closing redis client", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	logger.Info("waiting for workers to stop...")
	a.wg.Wait()
	return nil
}
