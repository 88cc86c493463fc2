package dispatch

import (
	"context"
	"time"

	"groupcast/internal/store"
)

type Action string

const (
	// ActionSend broadcasts the job's message body to every group.
	ActionSend Action = "send"
	// ActionListGroups only enumerates groups and reports them back.
	ActionListGroups Action = "list_groups"
)

// Group is one chat group an account belongs to, as discovered from the
// platform at runtime. Groups are not persisted beyond the ledger.
type Group struct {
	ID    int64
	Title string
}

// Job is one account's unit of work inside a batch. It is owned
// exclusively by the goroutine running it.
type Job struct {
	Account store.Account
	Action  Action
	Body    string // message text, only for ActionSend
}

// Result is the outcome of one finished job.
type Result struct {
	Handle  string
	Action  Action
	Sent    int
	Skipped int
	Groups  []Group // populated for ActionListGroups
	Err     error   // non-nil when the job aborted
}

// Session is one authenticated platform session.
//
// Groups enumerates every group the account is a member of. Send
// delivers a message to one group and reports failures as the typed
// errors in this package. Close must be called exactly once and
// releases platform-side resources.
type Session interface {
	Groups(ctx context.Context) ([]Group, error)
	Send(ctx context.Context, g Group, text string) error
	Close() error
}

// Gateway authenticates one account against the chat platform.
// Implementations may suspend mid-authentication to ask the operator
// for a login code or a two-factor password.
type Gateway interface {
	Authenticate(ctx context.Context, acct store.Account) (Session, error)
}

// Ledger is the slice of the store the engine writes to.
type Ledger interface {
	RecordSend(ctx context.Context, handle, groupID, message string) error
}

// Config controls engine pacing and retry behavior.
type Config struct {
	// MinDelay/MaxDelay bound the random pause before every send.
	MinDelay time.Duration
	MaxDelay time.Duration

	// RatePerSec caps sends per second across all accounts combined.
	// <= 0 disables the global cap.
	RatePerSec int

	// FloodRetryMax caps flood-wait retries per group; 0 means retry
	// without limit, matching the historical behavior.
	FloodRetryMax int
}
