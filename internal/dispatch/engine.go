package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"groupcast/internal/pacer"
	logx "groupcast/pkg/logx"
)

// JobStatus is a point-in-time snapshot of one job's progress.
type JobStatus struct {
	Handle    string
	Total     int
	Sent      int
	Skipped   int
	Running   bool
	StartedAt time.Time
	DoneAt    time.Time
}

// Engine fans a batch out over independent per-account sessions.
type Engine struct {
	cfg    Config
	gw     Gateway
	ledger Ledger
	pace   *pacer.Pacer
	// limiter is a global cross-account cap; per-account spacing is the
	// pacer's job.
	limiter *rate.Limiter
	log     logx.Logger

	statusMu sync.RWMutex
	status   map[string]*JobStatus

	runMu   sync.Mutex
	running bool
}

// ErrBatchRunning is returned when a batch is requested while another
// one is still in flight (e.g. a cron tick overlapping a manual run).
var ErrBatchRunning = errors.New("dispatch: a batch is already running")

func New(cfg Config, gw Gateway, ledger Ledger, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return &Engine{
		cfg:     cfg,
		gw:      gw,
		ledger:  ledger,
		pace:    pacer.New(cfg.MinDelay, cfg.MaxDelay),
		limiter: lim,
		log:     log,
		status:  map[string]*JobStatus{},
	}
}

// RunBatch starts one session loop per job, all concurrent, and blocks
// until every loop reached done or aborted. Results are positional with
// jobs. No job's failure affects another job's outcome.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job) ([]Result, error) {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return nil, ErrBatchRunning
	}
	e.running = true
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	batchID := uuid.NewString()
	start := time.Now()
	log := e.log.With(logx.String("batch", batchID))
	log.Info("batch started", logx.Int("jobs", len(jobs)))

	e.resetStatus(jobs)

	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		i, j := i, j
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in session loop",
						logx.String("handle", j.Account.Handle),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
					results[i] = Result{Handle: j.Account.Handle, Action: j.Action, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			results[i] = e.runJob(ctx, log, j)
		}()
	}
	wg.Wait()

	var sent, aborted int
	for _, r := range results {
		sent += r.Sent
		if r.Err != nil {
			aborted++
		}
	}
	fields := []logx.Field{
		logx.Int("jobs", len(jobs)),
		logx.Int("sent", sent),
		logx.Int("aborted", aborted),
		logx.Duration("took", time.Since(start)),
	}
	if aborted > 0 {
		log.Warn("batch finished with aborted jobs", fields...)
	} else {
		log.Info("batch finished", fields...)
	}
	return results, nil
}

// runJob drives one account through authenticate -> enumerate -> send.
func (e *Engine) runJob(ctx context.Context, log logx.Logger, j Job) Result {
	res := Result{Handle: j.Account.Handle, Action: j.Action}
	log = log.With(logx.String("handle", j.Account.Handle))

	sess, err := e.gw.Authenticate(ctx, j.Account)
	if err != nil {
		aerr := &AuthError{Handle: j.Account.Handle, Err: err}
		log.Error("authentication failed", logx.Err(err))
		res.Err = aerr
		e.finishStatus(j.Account.Handle)
		return res
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("session close failed", logx.Err(cerr))
		}
		e.finishStatus(j.Account.Handle)
	}()

	groups, err := sess.Groups(ctx)
	if err != nil {
		log.Error("group enumeration failed", logx.Err(err))
		res.Err = fmt.Errorf("list groups for %s: %w", j.Account.Handle, err)
		return res
	}
	e.setTotal(j.Account.Handle, len(groups))
	log.Info("groups enumerated", logx.Int("groups", len(groups)))

	if j.Action == ActionListGroups {
		res.Groups = groups
		return res
	}

	for _, g := range groups {
		sent, err := e.sendOne(ctx, log, sess, g, j.Body)
		if err != nil {
			// Cancellation: partial progress already in the ledger stays valid.
			res.Err = err
			return res
		}
		if !sent {
			res.Skipped++
			e.bumpStatus(j.Account.Handle, false)
			continue
		}
		res.Sent++
		e.bumpStatus(j.Account.Handle, true)
		if lerr := e.ledger.RecordSend(ctx, j.Account.Handle, strconv.FormatInt(g.ID, 10), j.Body); lerr != nil {
			// The message left the building; losing the audit row must
			// not stop the session.
			log.Error("ledger write failed", logx.Int64("group_id", g.ID), logx.Err(lerr))
		}
		log.Info("sent", logx.Int64("group_id", g.ID), logx.String("group", g.Title), logx.Int("count", res.Sent))
	}
	return res
}

// sendOne delivers to a single group. It returns (false, nil) when the
// group was skipped for a recoverable reason and a non-nil error only
// on cancellation.
func (e *Engine) sendOne(ctx context.Context, log logx.Logger, sess Session, g Group, body string) (bool, error) {
	floodRetries := 0
	for {
		if err := e.pace.Wait(ctx); err != nil {
			return false, err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return false, err
			}
		}

		err := sess.Send(ctx, g, body)
		if err == nil {
			return true, nil
		}

		var rl *RateLimitedError
		if errors.As(err, &rl) {
			floodRetries++
			if e.cfg.FloodRetryMax > 0 && floodRetries > e.cfg.FloodRetryMax {
				log.Warn("flood retry budget exhausted, skipping group",
					logx.Int64("group_id", g.ID), logx.Int("retries", floodRetries-1))
				return false, nil
			}
			log.Warn("flood wait", logx.Int64("group_id", g.ID), logx.Duration("retry_after", rl.RetryAfter))
			if serr := pacer.Sleep(ctx, rl.RetryAfter); serr != nil {
				return false, serr
			}
			continue // same group again
		}

		var fb *ForbiddenError
		if errors.As(err, &fb) {
			log.Warn("banned in group, skipping", logx.Int64("group_id", g.ID), logx.String("group", g.Title))
			return false, nil
		}

		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		log.Warn("transient send failure, skipping group",
			logx.Int64("group_id", g.ID), logx.String("group", g.Title), logx.Err(err))
		return false, nil
	}
}

// ---- status tracking ----

func (e *Engine) resetStatus(jobs []Job) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.status = make(map[string]*JobStatus, len(jobs))
	now := time.Now()
	for _, j := range jobs {
		e.status[j.Account.Handle] = &JobStatus{Handle: j.Account.Handle, Running: true, StartedAt: now}
	}
}

func (e *Engine) setTotal(handle string, n int) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if st := e.status[handle]; st != nil {
		st.Total = n
	}
}

func (e *Engine) bumpStatus(handle string, sent bool) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if st := e.status[handle]; st != nil {
		if sent {
			st.Sent++
		} else {
			st.Skipped++
		}
	}
}

func (e *Engine) finishStatus(handle string) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if st := e.status[handle]; st != nil {
		st.Running = false
		st.DoneAt = time.Now()
	}
}

// Status reports a snapshot of the current (or last) batch, one entry
// per account handle.
func (e *Engine) Status() []JobStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	out := make([]JobStatus, 0, len(e.status))
	for _, st := range e.status {
		out = append(out, *st)
	}
	return out
}
