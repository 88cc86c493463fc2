// Package app wires config, storage, crypto, the Telegram gateway, and
// the dispatch engine together and runs the operator menu.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"groupcast/internal/config"
	"groupcast/internal/dispatch"
	gatewaytg "groupcast/internal/gateway/telegram"
	"groupcast/internal/operator"
	"groupcast/internal/scheduler"
	"groupcast/internal/secretbox"
	"groupcast/internal/store"
	"groupcast/internal/templates"
	logx "groupcast/pkg/logx"
)

type App struct {
	cfg    config.Config
	logSvc *logx.Service
	log    logx.Logger

	db      *store.DB
	engine  *dispatch.Engine
	console *operator.Console
	tdir    templates.Dir
	sched   *scheduler.Service
}

// New loads config and brings every component up. The only process-
// fatal condition besides config/storage bootstrap is an unreadable
// encryption key: credentials sealed under it would be lost anyway.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	key, err := secretbox.LoadOrCreateKey(cfg.Storage.KeyPath)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	box, err := secretbox.New(key)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	db, err := store.Open(store.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, box, log.With(logx.String("component", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	console := operator.NewConsole()

	gw, err := gatewaytg.New(
		gatewaytg.Config{SessionDir: cfg.Telegram.SessionDir},
		console,
		log.With(logx.String("component", "telegram")),
	)
	if err != nil {
		_ = db.Close()
		_ = logSvc.Close()
		return nil, err
	}

	minDelay, maxDelay := cfg.PacingDelays()
	engine := dispatch.New(dispatch.Config{
		MinDelay:      minDelay,
		MaxDelay:      maxDelay,
		RatePerSec:    cfg.Pacing.RatePerSec,
		FloodRetryMax: cfg.Pacing.FloodRetryMax,
	}, gw, db, log.With(logx.String("component", "dispatch")))

	a := &App{
		cfg:     cfg,
		logSvc:  logSvc,
		log:     log,
		db:      db,
		engine:  engine,
		console: console,
		tdir:    templates.NewDir(cfg.Templates.Dir),
	}

	if sc := cfg.Schedule; sc != nil && sc.Enabled {
		a.sched, err = scheduler.New(sc.Spec, sc.Tag, a.runScheduled, log.With(logx.String("component", "schedule")))
		if err != nil {
			_ = db.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("schedule.spec: %w", err)
		}
	}

	return a, nil
}

func (a *App) Close() error {
	if a.sched != nil {
		a.sched.Stop()
	}
	err := a.db.Close()
	_ = a.logSvc.Close()
	return err
}

// Run drives the operator menu until quit or cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.sched != nil {
		if err := a.sched.Start(ctx); err != nil {
			return err
		}
	}

	for {
		choice, err := a.console.Choose(ctx, "groupcast menu:", []string{
			"add account",
			"send broadcast",
			"list groups",
			"status",
			"quit",
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		switch choice {
		case 0:
			err = a.addAccount(ctx)
		case 1:
			err = a.runBroadcast(ctx, "")
		case 2:
			err = a.listGroups(ctx)
		case 3:
			err = a.showStatus(ctx)
		case 4:
			a.console.Say("bye")
			return nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			a.console.Say("error: %v", err)
		}
	}
}

func (a *App) addAccount(ctx context.Context) error {
	apiID, err := a.console.Prompt(ctx, "API ID: ")
	if err != nil {
		return err
	}
	apiHash, err := a.console.Prompt(ctx, "API hash: ")
	if err != nil {
		return err
	}
	handle, err := a.console.Prompt(ctx, "Phone number (with +): ")
	if err != nil {
		return err
	}
	if apiID == "" || apiHash == "" || handle == "" {
		return errors.New("all three fields are required")
	}

	id, err := a.db.AddAccount(ctx, apiID, apiHash, handle)
	if err != nil {
		return err
	}
	a.log.Info("account added", logx.String("handle", handle), logx.Int64("record_id", id))
	a.console.Say("Account %s stored (record %d).", handle, id)
	a.console.Say("Create its message files: %s, %s, %s.",
		a.tdir.MessagePath(handle, templates.TagStandard),
		a.tdir.MessagePath(handle, templates.TagPremium),
		a.tdir.MessagePath(handle, templates.TagAnnouncement))
	return nil
}

// loadAccounts loads the decrypted roster and reports undecryptable
// rows to the operator without failing the load.
func (a *App) loadAccounts(ctx context.Context) ([]store.Account, error) {
	accts, corrupt, err := a.db.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range corrupt {
		a.console.Say("warning: %v", c)
	}
	if len(accts) == 0 {
		return nil, errors.New("no usable accounts; add one first")
	}
	return accts, nil
}

func (a *App) runBroadcast(ctx context.Context, tag string) error {
	if tag == "" {
		idx, err := a.console.Choose(ctx, "Message type:", templates.Tags())
		if err != nil {
			return err
		}
		tag = templates.Tags()[idx]
	}

	accts, err := a.loadAccounts(ctx)
	if err != nil {
		return err
	}

	var jobs []dispatch.Job
	for _, acct := range accts {
		body, err := a.tdir.Message(acct.Handle, tag)
		if err != nil {
			var nf *templates.NotFoundError
			if errors.As(err, &nf) {
				a.console.Say("warning: %v — skipping this account", nf)
				continue
			}
			return err
		}
		jobs = append(jobs, dispatch.Job{Account: acct, Action: dispatch.ActionSend, Body: body})
	}
	if len(jobs) == 0 {
		return errors.New("no account has a message file for tag " + tag)
	}

	results, err := a.engine.RunBatch(ctx, jobs)
	if err != nil {
		return err
	}
	a.reportResults(results)
	return nil
}

func (a *App) listGroups(ctx context.Context) error {
	accts, err := a.loadAccounts(ctx)
	if err != nil {
		return err
	}

	jobs := make([]dispatch.Job, 0, len(accts))
	for _, acct := range accts {
		jobs = append(jobs, dispatch.Job{Account: acct, Action: dispatch.ActionListGroups})
	}

	results, err := a.engine.RunBatch(ctx, jobs)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			a.console.Say("%s: %v", r.Handle, r.Err)
			continue
		}
		if len(r.Groups) == 0 {
			a.console.Say("%s: no groups found", r.Handle)
			continue
		}
		for _, g := range r.Groups {
			a.console.Say("%s: %s (ID: %d)", r.Handle, g.Title, g.ID)
		}
		path, werr := a.tdir.WriteGroupSnapshot(r.Handle, r.Groups)
		if werr != nil {
			a.console.Say("warning: %v", werr)
			continue
		}
		a.console.Say("%s: %d groups saved to %s", r.Handle, len(r.Groups), path)
	}
	return nil
}

func (a *App) showStatus(ctx context.Context) error {
	total, err := a.db.SendCount(ctx, "")
	if err != nil {
		return err
	}
	a.console.Say("ledger: %d messages recorded in total", total)

	for _, st := range a.engine.Status() {
		state := "done"
		if st.Running {
			state = "running"
		}
		a.console.Say("  %s: %s, %d/%d sent, %d skipped", st.Handle, state, st.Sent, st.Total, st.Skipped)
	}

	recent, err := a.db.RecentSends(ctx, 10)
	if err != nil {
		return err
	}
	for _, r := range recent {
		body := r.Message
		if len(body) > 40 {
			body = body[:40] + "..."
		}
		body = strings.ReplaceAll(body, "\n", " ")
		a.console.Say("  %s %s -> %s: %s", r.SentAt.Format("2006-01-02 15:04:05"), r.Handle, r.GroupID, body)
	}
	return nil
}

// runScheduled is the cron entry point. Overlap with a manual batch is
// fine: the engine rejects it and we log and wait for the next tick.
func (a *App) runScheduled(ctx context.Context, tag string) {
	if err := a.runBroadcast(ctx, tag); err != nil {
		if errors.Is(err, dispatch.ErrBatchRunning) {
			a.log.Warn("skipping scheduled tick, batch already running", logx.String("tag", tag))
			return
		}
		a.log.Error("scheduled broadcast failed", logx.String("tag", tag), logx.Err(err))
	}
}

func (a *App) reportResults(results []dispatch.Result) {
	var sent, skipped, aborted int
	for _, r := range results {
		if r.Err != nil {
			aborted++
			a.console.Say("%s: aborted: %v", r.Handle, r.Err)
			continue
		}
		sent += r.Sent
		skipped += r.Skipped
		a.console.Say("%s: %d sent, %d skipped", r.Handle, r.Sent, r.Skipped)
	}
	a.console.Say("batch done: %d sent, %d skipped, %d accounts aborted", sent, skipped, aborted)
}
