package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"nostrchat/internal/broker"
	"nostrchat/internal/bus"
	"nostrchat/internal/config"
	"nostrchat/internal/core"
	"nostrchat/internal/domain"
	"nostrchat/internal/logging"
	"nostrchat/internal/notifications"
	"nostrchat/internal/persistence"
	"nostrchat/internal/ui"
)

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	RelayRepo   *persistence.RelayRepo
	ContactRepo *persistence.ContactRepo
	MessageRepo *persistence.MessageRepo
	WriterQueue *persistence.WriterQueue

	Core       *core.Handle
	Broker     *broker.Broker
	Dispatcher *ui.Dispatcher

	notifier *NotificationService
}

func Initialize(parent context.Context) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting nostrchat runtime")

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db

	rt.RelayRepo = persistence.NewRelayRepo(db)
	rt.ContactRepo = persistence.NewContactRepo(db)
	rt.MessageRepo = persistence.NewMessageRepo(db)

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 512)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b

	store := NewPersistentStore(writerQueue, rt.RelayRepo, rt.ContactRepo, rt.MessageRepo)
	handle := core.NewHandle(logMgr.Logger("core"), b, core.DialRelay, store)
	handle.Start(ctx)
	rt.Core = handle

	if err := rt.loadCoreState(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	if cfg.Identity.SecretKey != "" {
		if err := handle.ImportSecretKey(cfg.Identity.SecretKey); err != nil {
			slog.Warn("restore identity from config", "error", err)
		}
	}

	dispatcher := ui.NewDispatcher(logMgr.Logger("ui"))
	dispatcher.Start(ctx)
	rt.Dispatcher = dispatcher

	rt.Broker = broker.New(logMgr.Logger("broker"), handle, b, dispatcher)
	go rt.Broker.Run(ctx)

	sender := notifications.NewBeeepSender(logMgr.Logger("notifications"))
	rt.notifier = NewNotificationService(b, rt.currentContacts, sender, logMgr.Logger("notifications"))
	rt.notifier.Start(ctx)

	return rt, nil
}

// loadCoreState seeds the protocol engine from the database. An empty
// relay table falls back to the configured defaults, which covers first
// runs.
func (r *Runtime) loadCoreState(ctx context.Context) error {
	relays, err := r.RelayRepo.ListOrdered(ctx)
	if err != nil {
		return fmt.Errorf("load relays: %w", err)
	}
	if len(relays) == 0 {
		relays = append([]string(nil), r.Config.DefaultRelays...)
	}

	contacts, err := r.ContactRepo.ListSortedByAlias(ctx)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	history, err := r.MessageRepo.LoadRecentPerPeer(ctx, RecentMessagesLoad)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	r.Core.LoadState(relays, contacts, history)

	return nil
}

// PersistIdentity stores the active secret key in the config file so the
// keypair survives restarts.
func (r *Runtime) PersistIdentity(secretKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Config.Identity.SecretKey == secretKey {
		return nil
	}
	cfg := r.Config
	cfg.Identity.SecretKey = secretKey
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		return err
	}
	r.Config = cfg

	return nil
}

func (r *Runtime) ClearDatabase() error {
	if r.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	return persistence.ClearDatabase(context.Background(), r.DB)
}

func (r *Runtime) Close() error {
	if r.Broker != nil {
		r.Broker.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	return nil
}

func (r *Runtime) currentContacts() []domain.Contact {
	_, contacts := r.Core.Config()
	return contacts
}
