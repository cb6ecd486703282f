// Package server implements the entry point for running the SPI bridge daemon.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/spibridge/components/spibridge"
	"go.viam.com/spibridge/config"
	"go.viam.com/spibridge/deventry"
	"go.viam.com/spibridge/logging"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=bridge config file"`
	Debug      bool   `flag:"debug"`
	LogFile    string `flag:"log-file,usage=also write logs to this file"`
	Trace      bool   `flag:"trace,usage=log a trace span for every bus transaction"`
}

// RunServer is an entry point to starting the daemon that can be called by main or otherwise be
// used to run the bridges in a config file.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	if argsParsed.LogFile != "" {
		core, closer := logging.NewFileCore(argsParsed.LogFile, 0)
		defer func() {
			err = multierr.Combine(err, closer.Close())
		}()
		logger = logging.Tee(logger, core)
	}

	initialReadCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	cfg, err := config.Read(initialReadCtx, argsParsed.ConfigFile, logger)
	cancel()
	if err != nil {
		return err
	}

	defaultLevel := logging.INFO
	if argsParsed.Debug || cfg.Debug {
		defaultLevel = logging.DEBUG
		logger.SetLevel(logging.DEBUG)
	}
	if err := logging.UpdateLoggerLevels(cfg.LogConfig, defaultLevel, logger); err != nil {
		return err
	}

	if argsParsed.Trace {
		exp := newLoggingSpanExporter(logger.Sublogger("trace"))
		trace.RegisterExporter(exp)
		defer trace.UnregisterExporter(exp)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	srv, err := newServer(ctx, cfg, spibridge.Dependencies{}, logger)
	if err != nil {
		return err
	}
	err = srv.serve(ctx)
	if err != nil {
		logger.Errorw("error serving device entries", "error", err)
	}
	return err
}

// server runs the configured bridges and serves their device entries.
type server struct {
	registrar *deventry.HTTPRegistrar
	bridges   []*spibridge.Bridge
	listener  net.Listener
	logger    logging.Logger
}

// newServer starts every bridge in cfg. Bridge dependencies not set in deps are derived from each
// bridge's config.
func newServer(ctx context.Context, cfg *config.Config, deps spibridge.Dependencies, logger logging.Logger) (*server, error) {
	s := &server{
		registrar: deventry.NewHTTPRegistrar(logger.Sublogger("deventry")),
		logger:    logger,
	}
	deps.Registrar = s.registrar
	for _, bc := range cfg.Bridges {
		br, err := spibridge.NewBridge(ctx, bc, deps, logger.Sublogger(bc.Name))
		if err != nil {
			return nil, multierr.Combine(err, s.closeBridges(ctx))
		}
		s.bridges = append(s.bridges, br)
	}

	listener, err := net.Listen("tcp", cfg.Network.BindAddress)
	if err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "failed to listen on %s", cfg.Network.BindAddress), s.closeBridges(ctx))
	}
	s.listener = listener
	return s, nil
}

// Addr is the address device entries are served on.
func (s *server) Addr() net.Addr {
	return s.listener.Addr()
}

// serve blocks until ctx is done, then shuts down the HTTP server and closes every bridge.
func (s *server) serve(ctx context.Context) (err error) {
	httpServer := &http.Server{
		Handler:           s.registrar,
		ReadHeaderTimeout: time.Second * 5,
	}
	defer func() {
		err = multierr.Combine(err, s.closeBridges(context.Background()))
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	s.logger.Infow("serving device entries", "addr", s.Addr().String(), "entries", s.registrar.Names())
	return g.Wait()
}

func (s *server) closeBridges(ctx context.Context) error {
	var err error
	for i := len(s.bridges) - 1; i >= 0; i-- {
		err = multierr.Combine(err, s.bridges[i].Close(ctx))
	}
	s.bridges = nil
	return err
}
