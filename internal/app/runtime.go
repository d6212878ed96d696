package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/skobkin/meshmon/internal/bus"
	"github.com/skobkin/meshmon/internal/config"
	"github.com/skobkin/meshmon/internal/link"
	"github.com/skobkin/meshmon/internal/logging"
	"github.com/skobkin/meshmon/internal/notifications"
	"github.com/skobkin/meshmon/internal/persistence"
	"github.com/skobkin/meshmon/internal/platform"
	"github.com/skobkin/meshmon/internal/radio"
	"github.com/skobkin/meshmon/internal/session"
)

const shutdownTimeout = 10 * time.Second

// ErrDeviceInUse is returned by Start when another meshmon process already
// monitors the configured device.
var ErrDeviceInUse = errors.New("device already monitored by another meshmon process")

// Options adjusts Initialize. The zero value uses the user config dir,
// desktop notifications and stdout logging.
type Options struct {
	// ConfigFile replaces the default config location; the database and
	// log file live next to it.
	ConfigFile string
	// Override is applied to the loaded config before validation.
	Override func(*config.AppConfig)
	// LogOutput receives console logs.
	LogOutput io.Writer
	Sender    notifications.Sender
	// Link replaces the bridge link, mainly for tests.
	Link  radio.Link
	Clock clockwork.Clock
}

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	NodeRepo    *persistence.NodeRepo
	WriterQueue *persistence.WriterQueue
	writerDone  <-chan struct{}

	Link          radio.Link
	Session       *session.Manager
	Notifications *NotificationService
	deviceLock    platform.DeviceLock

	closeOnce sync.Once
	closeErr  error
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePathsFor(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
	}
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManagerWithOutput(opts.LogOutput)
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting meshmon runtime", "version", BuildVersion(), "build_date", BuildDateYMD())

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()

		return nil, err
	}
	rt.DB = db
	rt.NodeRepo = persistence.NewNodeRepo(db)

	rt.WriterQueue = persistence.NewWriterQueue(logMgr.Logger("persistence"), WriterQueueSize)
	rt.writerDone = rt.WriterQueue.Start(ctx)

	rt.Bus = bus.New(logMgr.Logger("bus"))

	rt.Link = opts.Link
	if rt.Link == nil {
		factory := TransportFactoryForConnection(cfg.Connection)
		rt.Link = link.NewBridge(logMgr.Logger("link.bridge"), TransportNameFromConnector(cfg.Connection.Connector), factory)
	}

	rt.Session = session.New(session.Params{
		Logger:     logMgr.Logger("session"),
		Bus:        rt.Bus,
		Link:       rt.Link,
		Store:      rt.NodeRepo,
		WriteQueue: rt.WriterQueue,
		Clock:      opts.Clock,
		Config:     cfg.Session,
		PortHint:   ConnectionTarget(cfg.Connection),
	})

	sender := opts.Sender
	if sender == nil {
		sender = notifications.NewDesktopSender(Name, logMgr.Logger("notifications"))
	}
	rt.Notifications = NewNotificationService(
		rt.Bus,
		rt.Session.DisplayName,
		rt.notificationPrefs,
		sender,
		logMgr.Logger("app.notifications"),
	)
	rt.Notifications.Start(ctx)

	return rt, nil
}

// Start takes the device lock, loads the node snapshot and connects to the
// device.
func (r *Runtime) Start() error {
	if err := r.lockDevice(); err != nil {
		return err
	}

	return r.Session.Start(r.Ctx)
}

func (r *Runtime) lockDevice() error {
	key := DeviceLockKey(r.Config.Connection)
	lock, err := platform.AcquireDeviceLock(Name, key)
	switch {
	case err == nil:
		r.mu.Lock()
		r.deviceLock = lock
		r.mu.Unlock()

		return nil
	case errors.Is(err, platform.ErrDeviceLocked):
		return fmt.Errorf("%w: %s", ErrDeviceInUse, key)
	case errors.Is(err, platform.ErrDeviceLockUnsupported):
		slog.Warn("device lock is not available, continuing without it", "error", err)

		return nil
	default:
		return fmt.Errorf("acquire device lock: %w", err)
	}
}

func (r *Runtime) notificationPrefs() config.NotificationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config.Notifications
}

// SaveConfig persists cfg. Connection and session changes apply on the next start.
func (r *Runtime) SaveConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		return err
	}
	r.Config = cfg

	return r.LogManager.Configure(cfg.Logging, r.Paths.LogFile)
}

// ClearNodes drops the persisted node snapshot.
func (r *Runtime) ClearNodes(ctx context.Context) (int64, error) {
	if r.DB == nil {
		return 0, errors.New("database is not initialized")
	}
	n, err := persistence.ClearNodes(ctx, r.DB)
	if err != nil {
		return 0, err
	}
	slog.Info("node snapshot cleared", "nodes", n)

	return n, nil
}

// Close shuts the session down and releases everything Initialize created,
// in reverse order.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.Session != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := r.Session.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown session: %w", err))
			}
			cancel()
		}
		if r.cancel != nil {
			r.cancel()
		}
		if r.writerDone != nil {
			<-r.writerDone
		}
		r.mu.Lock()
		lock := r.deviceLock
		r.deviceLock = nil
		r.mu.Unlock()
		if lock != nil {
			if err := lock.Release(); err != nil {
				errs = append(errs, fmt.Errorf("release device lock: %w", err))
			}
		}
		if r.Bus != nil {
			r.Bus.Close()
		}
		if r.DB != nil {
			if err := r.DB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
		if r.LogManager != nil {
			if err := r.LogManager.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close log file: %w", err))
			}
		}
		r.closeErr = errors.Join(errs...)
	})

	return r.closeErr
}
