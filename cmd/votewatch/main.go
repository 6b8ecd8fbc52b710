// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Command votewatch is a headless quickly-elect client. It watches an
// election for new votes, status changes and deadlines, and prints the
// notifications it raises.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/danielhkuo/quickly-elect/clientconfig"
	"github.com/danielhkuo/quickly-elect/dispatch"
)

const version = "0.1.0"

const usage = `votewatch - watch a quickly-elect election.

Settings come from QE_* environment variables (see clientconfig); flags
override them.

Usage:
    votewatch login --email=<email> --password=<password> [options]
    votewatch logout [options]
    votewatch status [options]
    votewatch notifications [--unread] [options]
    votewatch mark-read [<id>] [options]
    votewatch watch [options]
    votewatch -h | --help
    votewatch --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --url=<url>          Collection service URL.
    --app-id=<id>        Application id.
    --data=<path>        Client database file.
    --email=<email>      Account email.
    --password=<password>
    --unread             Only unread notifications.
    --debug              Verbose logging.`

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if debug, _ := opts.Bool("--debug"); debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !dispatch.IsAborted(err) {
		fmt.Fprintln(os.Stderr, "votewatch:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts docopt.Opts) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	return dispatchCommand(ctx, a, opts)
}

// loadConfig applies flag overrides on top of the environment.
func loadConfig(opts docopt.Opts) (clientconfig.Config, error) {
	for flag, variable := range map[string]string{
		"--url":    "BASE_URL",
		"--app-id": "APPLICATION_ID",
		"--data":   "DATA_PATH",
	} {
		if v, err := opts.String(flag); err == nil && v != "" {
			if err := os.Setenv(clientconfig.Prefix+variable, v); err != nil {
				return clientconfig.Config{}, err
			}
		}
	}
	return clientconfig.Load()
}

func dispatchCommand(ctx context.Context, a *app, opts docopt.Opts) error {
	is := func(cmd string) bool {
		v, _ := opts.Bool(cmd)
		return v
	}

	switch {
	case is("login"):
		email, _ := opts.String("--email")
		password, _ := opts.String("--password")
		return a.login(ctx, email, password)
	case is("logout"):
		return a.logout(ctx)
	case is("status"):
		return a.status(ctx)
	case is("notifications"):
		return a.notifications(ctx, is("--unread"))
	case is("mark-read"):
		id, _ := opts.String("<id>")
		return a.markRead(ctx, id)
	case is("watch"):
		return a.watch(ctx)
	}
	return fmt.Errorf("unknown command")
}
