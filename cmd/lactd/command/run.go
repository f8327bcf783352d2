package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"

	"github.com/openlact/lactd/api"
	"github.com/openlact/lactd/internal/config"
	"github.com/openlact/lactd/internal/daemon"
	"github.com/openlact/lactd/internal/discovery"
	"github.com/openlact/lactd/internal/handler"
	"github.com/openlact/lactd/internal/log"
	"github.com/openlact/lactd/internal/metrics"
	"github.com/openlact/lactd/internal/profiles"
	"github.com/openlact/lactd/internal/rpc"
	"github.com/openlact/lactd/internal/sysfs"
	"github.com/openlact/lactd/internal/uevent"
	"github.com/openlact/lactd/internal/version"
	"github.com/openlact/lactd/internal/watchdog"
)

var runFlags = []cli.Flag{
	cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level (debug, info, warn, error)"},
	cli.StringFlag{Name: "log-file", Usage: "additional log file path, logs to stderr only if unset"},
	cli.StringFlag{Name: "config", Usage: "config file path, overrides the default system/user path"},
	cli.StringFlag{Name: "socket-path", Usage: "unix socket path, overrides the daemon's default and any config value"},
	cli.StringFlag{Name: "tcp-listen-address", Usage: "additional TCP listen address for the RPC API, overrides config"},
	cli.StringFlag{Name: "exporter-listen-address", Usage: "Prometheus exporter listen address, overrides config"},
	cli.DurationFlag{Name: "profile-poll-interval", Value: 2 * time.Second, Usage: "process-list poll interval used when the netlink process connector is unavailable"},
}

// runCommand boots the daemon: load config, discover GPUs, start the
// RPC and metrics servers, start the profile watcher and the uevent
// listener, and block until a termination signal arrives.
func runCommand(cliCtx *cli.Context) error {
	lvl, err := log.ParseLogLevel(cliCtx.String("log-level"))
	if err != nil {
		return err
	}
	log.Logger = log.CreateLogger(lvl, cliCtx.String("log-file"))
	log.Logger.Infow("starting lactd", "version", version.Version, "profile", version.Profile)

	if os.Geteuid() != 0 {
		log.Logger.Warnw("not running as root, GPU control operations will fail")
	}

	configPath := cliCtx.String("config")
	if configPath == "" {
		configPath = config.DefaultPath("lactd", os.Geteuid())
	}
	store := config.NewStore(configPath)
	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if v := cliCtx.String("tcp-listen-address"); v != "" {
		cfg.Daemon.TcpListenAddress = v
	}
	if v := cliCtx.String("exporter-listen-address"); v != "" {
		cfg.Daemon.ExporterListenAddress = v
	}

	controllers, err := discovery.Discover(sysfs.DefaultDrmRoot())
	if err != nil {
		return fmt.Errorf("discovering GPUs: %w", err)
	}
	log.Logger.Infow("discovered GPUs", "count", len(controllers))
	for id := range controllers {
		if _, ok := cfg.Gpus[id]; !ok {
			cfg.Gpus[id] = api.GpuConfig{}
		}
	}
	if err := store.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	wd := watchdog.New(time.Duration(cfg.ApplySettingsTimerSeconds) * time.Second)
	h := handler.New(cfg, store, controllers, wd, "lactd")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	signals := make(chan os.Signal, 2048)
	serverC := make(chan daemon.ServerStopper, 1)
	done := daemon.HandleSignals(rootCtx, rootCancel, signals, serverC, func(context.Context) error { return nil })
	signal.Notify(signals, daemon.DefaultSignalsToHandle...)

	socketPath := cliCtx.String("socket-path")
	if socketPath == "" {
		socketPath = rpc.DefaultSocketPath("lactd")
	}
	rpcServer := rpc.New(h, socketPath, cfg.Daemon.AdminGroups, cfg.Daemon.TcpListenAddress)
	serverC <- rpcStopper{cancel: rootCancel}

	errC := make(chan error, 3)
	go func() { errC <- rpcServer.Serve(rootCtx) }()

	if cfg.Daemon.ExporterListenAddress != "" {
		metricsServer := metrics.NewServer(cfg.Daemon.ExporterListenAddress, h)
		go func() { errC <- metricsServer.Serve(rootCtx) }()
	}

	procConn, err := profiles.NewNetlinkConnector()
	var watcherConn profiles.ProcessConnector
	if err != nil {
		log.Logger.Warnw("netlink process connector unavailable, falling back to polling", "error", err)
		watcherConn = profiles.NewPollingConnector(cliCtx.Duration("profile-poll-interval"))
	} else {
		watcherConn = procConn
	}

	watcher := profiles.NewWatcher(store, h.SetProfile, watcherConn)
	h.SetProfileStateFunc(watcher.Snapshot)
	watcher.Start(rootCtx)
	defer watcher.Stop()

	if drmEvents, listener, err := startUeventListener(); err != nil {
		log.Logger.Warnw("drm uevent listener unavailable, hotplug re-detection disabled", "error", err)
	} else {
		defer listener.Close()
		go reapplyOnDrmEvent(rootCtx, h, drmEvents)
	}

	log.Logger.Infow("lactd ready", "socket", socketPath, "devices", len(controllers))

	select {
	case err := <-errC:
		rootCancel()
		if err != nil && rootCtx.Err() == nil {
			log.Logger.Errorw("server exited unexpectedly", "error", err)
		}
	case <-done:
	}

	for id, ctrl := range controllers {
		if cfg.Daemon.DisableClocksCleanup {
			continue
		}
		if err := ctrl.CleanupClocks(); err != nil {
			log.Logger.Warnw("clocks cleanup failed", "device", id, "error", err)
		}
		if err := ctrl.Close(); err != nil {
			log.Logger.Warnw("closing controller failed", "device", id, "error", err)
		}
	}

	return nil
}

// rpcStopper adapts rootCancel into the daemon.ServerStopper interface
// HandleSignals expects; canceling the root context is what actually
// unwinds rpc.Server.Serve and metrics.Server.Serve.
type rpcStopper struct {
	cancel context.CancelFunc
}

func (s rpcStopper) Stop() { s.cancel() }

func startUeventListener() (chan struct{}, *uevent.Listener, error) {
	l, err := uevent.New()
	if err != nil {
		return nil, nil, err
	}
	drmEvents := make(chan struct{}, 1)
	go func() {
		if err := l.Run(drmEvents); err != nil {
			log.Logger.Warnw("uevent listener stopped", "error", err)
		}
	}()
	return drmEvents, l, nil
}

// reapplyOnDrmEvent re-asserts the active config's GPU settings whenever
// the kernel reports a drm subsystem event, covering hardware that
// resets clocks/fan/power state across a GPU reset or hot (re)plug.
func reapplyOnDrmEvent(ctx context.Context, h *handler.Handler, drmEvents <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-drmEvents:
			log.Logger.Infow("drm uevent observed, re-applying active config")
			h.ReapplyActiveConfig(ctx)
		}
	}
}
