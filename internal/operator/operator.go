// Package operator is the human side of groupcast: menu navigation,
// credential entry, and the interactive challenges Telegram raises
// mid-login. Everything behind the Prompter interface so the engine and
// gateway stay testable with a scripted fake.
package operator

import "context"

// Prompter answers interactive authentication challenges. The gateway
// calls it from inside a login flow; implementations may block on user
// input but must honor ctx cancellation.
type Prompter interface {
	// Code asks for the one-time login code sent to the account.
	Code(ctx context.Context, handle string) (string, error)
	// Password asks for the account's two-factor password.
	Password(ctx context.Context, handle string) (string, error)
}
