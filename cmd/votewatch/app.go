// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/quickly-elect/cache"
	"github.com/danielhkuo/quickly-elect/clientconfig"
	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/credstore"
	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/events"
	"github.com/danielhkuo/quickly-elect/localdb"
	"github.com/danielhkuo/quickly-elect/models"
	"github.com/danielhkuo/quickly-elect/monitor"
	"github.com/danielhkuo/quickly-elect/notify"
	"github.com/danielhkuo/quickly-elect/refresh"
	"github.com/danielhkuo/quickly-elect/votecontrol"
)

// app wires the client core for one process.
type app struct {
	out      io.Writer
	conn     *sql.DB
	client   *collections.Client
	reader   *cache.Reader
	bus      *events.Bus
	store    *notify.Store
	control  *votecontrol.Service
	monitor  *monitor.Monitor
	registry *refresh.Registry
}

func newApp(cfg clientconfig.Config, out io.Writer) (*app, error) {
	conn, err := localdb.Open(cfg.DataPath)
	if err != nil {
		return nil, err
	}

	creds := credstore.NewSQLiteStore(conn)
	client := collections.New(dispatch.New(cfg.Dispatch(), creds), creds)
	bus := events.NewBus()

	store, err := notify.New(
		notify.NewRemoteBackend(client),
		notify.NewLocalBackend(conn),
		notify.WithRetention(cfg.NotificationRetention),
		notify.WithToaster(notify.ToasterFunc(func(n models.Notification) {
			fmt.Fprintf(out, "!! %s: %s\n", n.Title, n.Message)
		})),
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	control := votecontrol.New(client, bus, votecontrol.WithNotifier(store))
	return &app{
		out:      out,
		conn:     conn,
		client:   client,
		reader:   cache.NewReader(client, cache.New(cfg.CacheTTL), cache.WithPublisher(bus), cache.WithFetchTimeout(cfg.FetchTimeout())),
		bus:      bus,
		store:    store,
		control:  control,
		monitor:  monitor.New(client, control, store, bus, monitor.WithConfig(cfg.Monitor())),
		registry: refresh.New(cfg.RefreshRate),
	}, nil
}

func (a *app) Close() error {
	a.registry.Close()
	return a.conn.Close()
}

func (a *app) login(ctx context.Context, email, password string) error {
	user, err := a.client.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", user.Email, user.Role)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.client.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) status(ctx context.Context) error {
	active, err := a.control.IsVotingActive(ctx)
	if err != nil {
		return err
	}
	st, err := a.control.Get(ctx)
	if err != nil {
		return err
	}
	votes, err := a.client.Count(ctx, models.CollectionVotes, nil)
	if err != nil {
		return err
	}

	state := "open"
	if !active {
		state = "closed"
	}
	fmt.Fprintf(a.out, "Voting:  %s (%s)\n", state, st.Status)
	fmt.Fprintf(a.out, "Results: %s\n", st.ResultsVisibility)
	fmt.Fprintf(a.out, "Votes:   %s\n", humanize.Comma(int64(votes)))
	if st.AutoStopDate != nil {
		fmt.Fprintf(a.out, "Closes:  %s (%s)\n", st.AutoStopDate.Local().Format(time.RFC1123), humanize.Time(*st.AutoStopDate))
	}
	if st.Status == models.StatusStopped && st.Reason != "" {
		fmt.Fprintf(a.out, "Reason:  %s\n", st.Reason)
	}
	return nil
}

func (a *app) notifications(ctx context.Context, unreadOnly bool) error {
	list, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	shown := 0
	for _, n := range list {
		if unreadOnly && !n.Unread {
			continue
		}
		a.printNotification(n)
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(a.out, "No notifications")
	}
	return nil
}

func (a *app) printNotification(n models.Notification) {
	marker := " "
	if n.Unread {
		marker = "*"
	}
	fmt.Fprintf(a.out, "%s %s  %-8s %s: %s (%s)\n", marker, n.ID, n.Priority, n.Title, n.Message, humanize.Time(n.Timestamp))
}

func (a *app) markRead(ctx context.Context, id string) error {
	if id == "" {
		return a.store.MarkAllRead(ctx)
	}
	return a.store.MarkRead(ctx, id)
}

// watch runs the monitor and the refresh registry until ctx is cancelled.
func (a *app) watch(ctx context.Context) error {
	if err := a.monitor.Initialize(ctx); err != nil {
		slog.Warn("monitor baseline incomplete", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	candidates := func(ctx context.Context) error {
		recs, err := a.reader.Refresh(ctx, models.CollectionCandidates, nil, collections.FindOptions{Sort: []string{"category", "name"}})
		if err != nil {
			return err
		}
		slog.Debug("candidates refreshed", "count", len(recs))
		return nil
	}
	a.registry.Register(models.CollectionCandidates, candidates)
	defer a.registry.Unregister(models.CollectionCandidates)

	a.monitor.StartVoteMonitoring(ctx)
	a.monitor.StartVotingStatusMonitoring(ctx)

	topics := []string{events.VotesUpdated, events.VotingStatusChanged, events.ResultsVisibilityChanged, events.CandidatesUpdated}
	for _, topic := range topics {
		signals, unsubscribe := a.bus.SubscribeChan(topic)
		g.Go(func() error {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-signals:
					fmt.Fprintf(a.out, "-- %s\n", topic)
					if topic == events.VotingStatusChanged {
						if err := a.registry.Refresh(ctx, models.CollectionCandidates); err != nil && !dispatch.IsAborted(err) {
							slog.Warn("candidate refresh failed", "error", err)
						}
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.monitor.StopMonitoring()
		return nil
	})

	fmt.Fprintln(a.out, "Watching for changes, press Ctrl+C to stop")
	return g.Wait()
}
