package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/procpool/procpool/internal/config"
	"github.com/procpool/procpool/internal/history"
	"github.com/procpool/procpool/internal/history/factory"
	"github.com/procpool/procpool/internal/metrics"
	"github.com/procpool/procpool/internal/pool"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/server"
	"github.com/procpool/procpool/internal/spawner"
	ptls "github.com/procpool/procpool/internal/tls"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve <config.toml>",
		Short: "Run the pool daemon and its HTTP control surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args[0])
		},
	}
}

func runServe(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg, err := config.LoadLoggerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load logger config: %w", err)
	}
	log := slog.Default()

	groups, err := config.LoadGroupsFromTOML(configPath)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	startCommands := buildStartCommandTable(fc.Groups)

	f := &spawner.Factory{
		Logs: logCfg,
		Log:  log,
		StartCommand: func(opts poolopts.Options) []string {
			if argv, ok := startCommands[opts.GroupName()]; ok {
				return argv
			}
			return nil
		},
	}

	p := pool.New(fc.Pool.Max, fc.Pool.MaxIdleTime, f, log)

	if fc.History != nil && fc.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(fc.History.DSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		p.SetHistorySink(&history.Dispatcher{Sink: sink, Log: log})
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	p.SetAnalyticsCollector(metrics.CollectProcessMetrics)

	p.Start()
	defer p.Stop()

	warmUpGroups(p, groups, log)

	if fc.Server == nil || fc.Server.Listen == "" {
		log.Info("no [server] section configured, running with no HTTP control surface")
		waitForShutdown()
		return nil
	}

	tlsConfig, err := ptls.SetupTLS(*fc.Server)
	if err != nil {
		return fmt.Errorf("setup TLS: %w", err)
	}

	router := server.NewRouter(p, "", fc.Server.AuthToken)
	httpServer := &http.Server{
		Addr:              fc.Server.Listen,
		Handler:           router.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", fc.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", fc.Server.Listen, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control surface listening", "addr", fc.Server.Listen, "tls", tlsConfig != nil)
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-shutdownSignal():
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}
	return nil
}

// buildStartCommandTable indexes each configured group's start_command by
// the group name it registers under (spec §3, Group identity), so the
// spawner.Factory.StartCommand callback can resolve argv without the
// teacher's app-type-sniffing internal/detector, which this module dropped.
func buildStartCommandTable(groups []config.GroupConfig) map[string][]string {
	table := make(map[string][]string, len(groups))
	for _, gc := range groups {
		if len(gc.StartCommand) == 0 {
			continue
		}
		name := gc.AppGroupName
		if name == "" {
			name = gc.AppRoot
		}
		table[name] = gc.StartCommand
	}
	return table
}

// warmUpGroups pre-registers configured groups with the pool at startup so
// the first real get() for each app_root doesn't pay a cold-registration
// cost (the [[groups]] entries of the config file).
func warmUpGroups(p *pool.Pool, groups []poolopts.Options, log *slog.Logger) {
	for _, opts := range groups {
		opts := opts
		p.AsyncGet(opts, func(sess *process.Session, err error) {
			if err != nil {
				log.Warn("warm-up spawn failed", "app_root", opts.AppRoot, "err", err)
				return
			}
			if sess != nil {
				sess.Close()
			}
		})
	}
}

func waitForShutdown() {
	<-shutdownSignal()
}

func shutdownSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}
