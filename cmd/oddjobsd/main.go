// Command oddjobsd is the Odd Jobs daemon: it owns the write-ahead log,
// the materialized state, the single dispatch loop, and the unix-socket
// listener every oj invocation talks to.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/opus-domini/sentinel/internal/adapter"
	"github.com/opus-domini/sentinel/internal/bus"
	"github.com/opus-domini/sentinel/internal/config"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/listener"
	"github.com/opus-domini/sentinel/internal/runtime"
	"github.com/opus-domini/sentinel/internal/scheduler"
	"github.com/opus-domini/sentinel/internal/snapshotstore"
	"github.com/opus-domini/sentinel/internal/state"
	"github.com/opus-domini/sentinel/internal/timeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	initLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		slog.Error("create state dir", "err", err)
		return 1
	}

	snaps := snapshotstore.New(cfg.StateDir)
	snap, err := snaps.Load()
	if err != nil {
		slog.Error("load snapshot", "err", err)
		return 1
	}

	var (
		st          *state.State
		processedSeq uint64
	)
	if snap != nil {
		st = snap.State
		processedSeq = snap.Seq
	} else {
		st = state.New()
	}
	store := state.NewStore(st)

	wal, err := eventlog.Open(filepath.Join(cfg.StateDir, "wal.log"), processedSeq, eventlog.Options{})
	if err != nil {
		slog.Error("open wal", "err", err)
		return 1
	}

	b := bus.New()
	reader := bus.NewReader(wal, b, cfg.TimerCheckInterval)
	sched := scheduler.New()

	appendEvent := func(kind eventlog.Kind, payload any) (eventlog.Envelope, error) {
		atMS := time.Now().UnixMilli()
		seq, err := wal.Append(kind, atMS, payload)
		if err != nil {
			return eventlog.Envelope{}, err
		}
		env, err := eventlog.New(kind, atMS, payload)
		if err != nil {
			return eventlog.Envelope{}, err
		}
		env.Seq = seq
		if cfg.BusEmit {
			b.Wake()
		}
		return env, nil
	}

	agentAdapter := adapter.NewAgent(cfg.StateDir)
	executor := &effects.Executor{
		Agent:     agentAdapter,
		Shell:     adapter.NewShell(),
		Notifier:  adapter.NewNotifier(cfg.NotifyURL),
		Workspace: adapter.NewWorkspace(cfg.HookCommand),
		Append:    appendEvent,
		Scheduler: sched,
		Wake:      b.Wake,
	}

	crumbs := listener.NewCrumbStore(cfg.StateDir, func() int64 { return time.Now().UnixMilli() })
	rt := runtime.New(store, wal, b, reader, executor, sched, slog.Default())
	rt.Crumbs = crumbs

	tl, err := timeline.New(filepath.Join(cfg.StateDir, "timeline.db"))
	if err != nil {
		slog.Error("open timeline store", "err", err)
		return 1
	}
	defer func() { _ = tl.Close() }()
	rt.Timeline = tl

	orphans := listener.NewOrphanRegistry(crumbs)
	if err := scanOrphansAtStartup(orphans, store); err != nil {
		slog.Warn("scan orphans at startup", "err", err)
	}

	queries := listener.NewQueries(store, orphans, tl)

	ctx, cancel := context.WithCancel(context.Background())
	srv := listener.New(cfg.SockPath, func(kind eventlog.Kind, payload any) error {
		_, err := appendEvent(kind, payload)
		return err
	}, queries, slog.Default())
	srv.Shutdown = cancel

	if err := srv.Listen(); err != nil {
		slog.Error("listen on daemon socket", "sock", cfg.SockPath, "err", err)
		return 1
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-shutdownCh:
			slog.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ctx) }()

	flushDone := startFlushTicker(ctx, wal)
	timerDone := startTimerTicker(ctx, sched, appendEvent, cfg.TimerCheckInterval)
	snapshotDone := startSnapshotTicker(ctx, wal, store, snaps)

	go rt.Run(ctx)

	<-ctx.Done()
	<-flushDone
	<-timerDone
	<-snapshotDone
	if err := <-serveErrCh; err != nil {
		slog.Warn("listener serve exited with error", "err", err)
	}
	_ = srv.Close()
	if err := wal.Flush(); err != nil {
		slog.Error("final wal flush", "err", err)
		return 1
	}
	return 0
}

func initLogger(level string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
}

// startFlushTicker runs the WAL's group-commit flush on a fixed tick,
// independent of the dispatch loop so durability never waits on handler
// processing (spec.md §4.1).
func startFlushTicker(ctx context.Context, wal *eventlog.Wal) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(eventlog.DefaultFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if wal.NeedsFlush() {
					if err := wal.Flush(); err != nil {
						slog.Error("wal flush", "err", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// startTimerTicker polls the scheduler for fired deadlines and appends a
// TimerStart event for each, since nothing else drives scheduler-fired
// timers onto the WAL (spec.md §4.4).
func startTimerTicker(ctx context.Context, sched *scheduler.Scheduler, appendEvent func(eventlog.Kind, any) (eventlog.Envelope, error), interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, id := range sched.FiredTimers(time.Now()) {
					if _, err := appendEvent(eventlog.KindTimerStart, eventlog.TimerStart{TimerID: id}); err != nil {
						slog.Error("append TimerStart", "timer", id, "err", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// startSnapshotTicker periodically persists a full snapshot of the
// materialized state so a restart can skip replaying the entire WAL
// (spec.md §4.2).
func startSnapshotTicker(ctx context.Context, wal *eventlog.Wal, store *state.Store, snaps *snapshotstore.Store) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				seq := wal.ProcessedSeq()
				if err := snaps.Save(seq, time.Now().UnixMilli(), store.Clone()); err != nil {
					slog.Error("save snapshot", "err", err)
				}
			case <-ctx.Done():
				seq := wal.ProcessedSeq()
				if err := snaps.Save(seq, time.Now().UnixMilli(), store.Clone()); err != nil {
					slog.Error("save final snapshot", "err", err)
				}
				return
			}
		}
	}()
	return done
}

func scanOrphansAtStartup(orphans *listener.OrphanRegistry, store *state.Store) error {
	live := map[ids.JobID]bool{}
	store.Read(func(st *state.State) {
		for id := range st.Jobs {
			live[id] = true
		}
	})
	return orphans.ScanAtStartup(live)
}
