// Command oxidepmd is the long-lived local process-manager daemon: it owns
// the Supervisor, the sqlite-backed registry, and the unix-socket IPC
// server, and is the only process that ever touches a managed app
// directly.
//
// Grounded on the teacher's cmd/provisr/daemon.go for the background
// re-exec (detaching is the default; --foreground skips it) and
// cmd/provisr/main.go for the cobra root
// command shape, adapted from an embedded-library CLI to a client/server
// daemon per spec §6.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxidepm/oxidepm/internal/daemondir"
	"github.com/oxidepm/oxidepm/internal/env"
	"github.com/oxidepm/oxidepm/internal/ipc"
	"github.com/oxidepm/oxidepm/internal/registry"
	"github.com/oxidepm/oxidepm/internal/requesthandler"
	"github.com/oxidepm/oxidepm/internal/supervisor"
)

func main() {
	var (
		foreground bool
		logFile    string
		logLevel   string
	)

	root := &cobra.Command{
		Use:   "oxidepmd",
		Short: "oxidepm daemon: supervises processes over a local unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground {
				if err := daemonize(logFile); err != nil {
					return err
				}
			}
			return run(logFile, logLevel)
		},
	}
	root.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of detaching")
	root.Flags().StringVar(&logFile, "logfile", "", "daemon log file (defaults to ~/.oxidepm/logs/daemon.log)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oxidepmd:", err)
		os.Exit(1)
	}
}

func run(logFile, logLevel string) error {
	logger, closeLog, err := newLogger(logFile, logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	sockPath, err := daemondir.SocketPath()
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}
	dbPath, err := daemondir.DBPath()
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	savedPath, err := daemondir.SavedPath()
	if err != nil {
		return fmt.Errorf("resolve saved path: %w", err)
	}
	logDir, err := daemondir.LogDir()
	if err != nil {
		return fmt.Errorf("resolve log dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	sup := supervisor.New(supervisor.Config{
		Registry: reg,
		Env:      env.New(),
		LogDir:   logDir,
		Logger:   logger,
	})
	defer sup.Shutdown()

	if n, err := sup.Resurrect(ctx, savedPath); err != nil {
		logger.Warn("resurrect failed", "error", err)
	} else if n > 0 {
		logger.Info("resurrected apps from snapshot", "count", n)
	}

	server, err := ipc.Listen(sockPath, logger)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer server.Close()

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	handler := requesthandler.New(sup, savedPath, logger, func() {
		if _, err := sup.Save(context.Background(), savedPath); err != nil {
			logger.Warn("final save failed", "error", err)
		}
		cancelServe()
	})

	logger.Info("oxidepmd listening", "socket", sockPath)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(serveCtx, handler) }()

	select {
	case <-ctx.Done():
		logger.Info("signal received, saving and shutting down")
		if _, err := sup.Save(context.Background(), savedPath); err != nil {
			logger.Warn("shutdown save failed", "error", err)
		}
		cancelServe()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	return nil
}

func newLogger(logFile, level string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if logFile == "" {
		dir, err := daemondir.LogDir()
		if err != nil {
			return nil, func() {}, err
		}
		logFile = dir + "/daemon.log"
	}
	// #nosec G304 -- logFile is an operator-supplied path, not untrusted input.
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, opts))
	return logger, func() { _ = f.Close() }, nil
}

// daemonize re-execs oxidepmd detached in the background, grounded on the
// teacher's cmd/provisr/daemon.go: a --foreground re-exec with Setsid so
// the daemon survives the parent shell exiting, then the parent exits
// immediately.
func daemonize(logFile string) error {
	if os.Getppid() == 1 {
		return nil
	}
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := append([]string(nil), os.Args[1:]...)
	args = append(args, "--foreground")

	// #nosec G204 -- executable is this same binary's own resolved path.
	cmd := exec.Command(executable, args...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile == "" {
		if dir, err := daemondir.LogDir(); err == nil {
			logFile = dir + "/daemon.log"
		}
	}
	if logFile != "" {
		// #nosec G304 -- logFile is an operator-supplied path, not untrusted input.
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			cmd.Stdout = f
			cmd.Stderr = f
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon process: %w", err)
	}
	fmt.Printf("oxidepmd started, pid %d\n", cmd.Process.Pid)
	time.Sleep(100 * time.Millisecond)
	os.Exit(0)
	return nil
}
