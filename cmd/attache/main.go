// Command attache runs the Slack assistant daemon.
//
// Usage:
//
//	attache [--config path] [--log-level level]
//	attache setup [--config path]
//	attache service <install|start|stop|status>
//	attache version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/attachehq/attache/internal/cli"
	"github.com/attachehq/attache/internal/config"
	"github.com/attachehq/attache/internal/daemon"
	"github.com/attachehq/attache/internal/lifecycle"
	"github.com/attachehq/attache/internal/setup"
	"github.com/attachehq/attache/internal/store"
)

const version = "0.3.0"

// logBufferSize is how many recent log entries the dashboard can show.
const logBufferSize = 500

func main() {
	r := cli.NewRouter()
	r.Register(&cli.Command{
		Name:        "setup",
		Description: "Interactive first-run wizard",
		Run:         runSetup,
	})
	r.Register(&cli.Command{
		Name:        "service",
		Description: "Control the daemon under launchd or systemd",
		Run:         runService,
	})
	r.Register(&cli.Command{
		Name:        "version",
		Description: "Print the version",
		Run: func([]string) error {
			fmt.Println("attache " + version)
			return nil
		},
	})

	// Bare invocation and flag-only invocations run the daemon.
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		if !r.HasCommand(os.Args[1]) {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], r.Usage())
			os.Exit(2)
		}
		if err := r.Dispatch(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "attache:", err)
			os.Exit(1)
		}
		return
	}

	fs := flag.NewFlagSet("attache", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default ~/.attache/config.json)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	_ = fs.Parse(os.Args[1:])

	os.Exit(runDaemon(*configPath, *logLevel))
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("attache setup", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default ~/.attache/config.json)")
	_ = fs.Parse(args)

	res, err := setup.NewWizard(*configPath, setup.NewTerminalPrompter()).Run()
	if err != nil {
		return err
	}

	for _, step := range res.Steps {
		marker := "done"
		if step.Skipped {
			marker = "skip"
		}
		fmt.Printf("[%s] %-12s %s\n", marker, step.Step, step.Message)
	}
	fmt.Println("\nStart the daemon with: attache")
	return nil
}

func runService(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: attache service <install|start|stop|status>")
	}

	dir, err := defaultConfigDir()
	if err != nil {
		return err
	}
	sm := cli.NewServiceManager(dir)
	if !sm.Supported() {
		return errors.New("no supported service manager on this OS, run the binary directly")
	}

	switch args[0] {
	case "install":
		path, err := sm.Install()
		if err != nil {
			return err
		}
		fmt.Println("installed", path)
		return nil
	case "start":
		return printStatus(sm.Start())
	case "stop":
		return printStatus(sm.Stop())
	case "status":
		return printStatus(sm.Status())
	default:
		return fmt.Errorf("unknown service action %q", args[0])
	}
}

func printStatus(st cli.ServiceStatus) error {
	if st.Error != "" {
		return errors.New(st.Error)
	}
	fmt.Println(cli.FormatStatus(st))
	return nil
}

func defaultConfigDir() (string, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

func runDaemon(configPath, logLevel string) int {
	logger, logs := daemon.NewLogger(parseLevel(logLevel), logBufferSize)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "no config found, run `attache setup` to create one")
		}
		return 1
	}

	st, err := store.New(cfg.StorePath)
	if err != nil {
		logger.Error("open store", "error", err)
		return 1
	}

	mgr := lifecycle.NewManager(lifecycle.DefaultShutdownConfig(), logger)
	mgr.OnShutdown("store", func(ctx context.Context) error {
		return st.Close()
	})

	d := daemon.New(cfg, st, version, logger, logs)
	return mgr.Run(d.Run)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
