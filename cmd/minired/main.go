package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/pior/minired"
)

func main() {
	var (
		addr     = flag.String("addr", "", "listen address (default :6379, or $MINIRED_ADDR)")
		workers  = flag.Int("workers", minired.DefaultWorkers, "worker pool size")
		logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = level.NewFilter(logger, parseLevel(*logLevel))

	listen := *addr
	if listen == "" {
		listen = os.Getenv("MINIRED_ADDR")
	}

	srv, err := minired.NewServer(minired.Config{
		Addr:    listen,
		Workers: *workers,
		Logger:  logger,
	})
	if err != nil {
		level.Error(logger).Log("msg", "startup failed", "err", err)
		os.Exit(1)
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		level.Info(logger).Log("msg", "signal received, shutting down")
		srv.Shutdown()
	}()

	if err := srv.Run(); err != nil && !errors.Is(err, minired.ErrServerClosed) {
		level.Error(logger).Log("msg", "server failed", "err", err)
		os.Exit(1)
	}

	stats := srv.Stats()
	level.Info(logger).Log(
		"msg", "final stats",
		"accepted", stats.Accepted,
		"gets", stats.Gets,
		"hits", stats.Hits,
		"sets", stats.Sets,
		"dels", stats.Dels,
		"protocol_errors", stats.ProtocolErrors,
	)
}

func parseLevel(s string) level.Option {
	switch s {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
