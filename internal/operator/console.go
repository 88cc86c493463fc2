package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Console is the stdin/stdout Prompter plus the small set of prompt
// primitives the menu loop needs.
type Console struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewConsole() *Console {
	return &Console{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewConsoleFrom exists for tests.
func NewConsoleFrom(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Say writes a formatted line to the operator.
func (c *Console) Say(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Prompt prints label and reads one trimmed line, honoring ctx.
//
// A blocked stdin read cannot be interrupted, so the read runs in a
// goroutine and is abandoned on cancellation; for an interactive tool
// that is an acceptable leak on the way out.
func (c *Console) Prompt(ctx context.Context, label string) (string, error) {
	c.mu.Lock()
	fmt.Fprint(c.out, label)
	c.mu.Unlock()

	type lineResult struct {
		s   string
		err error
	}
	ch := make(chan lineResult, 1)
	go func() {
		s, err := c.in.ReadString('\n')
		ch <- lineResult{s: strings.TrimSpace(s), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.s == "" {
			return "", r.err
		}
		return r.s, nil
	}
}

// Choose prints numbered options and returns the chosen index.
func (c *Console) Choose(ctx context.Context, title string, options []string) (int, error) {
	for {
		c.Say("\n%s", title)
		for i, opt := range options {
			c.Say("  %d. %s", i+1, opt)
		}
		raw, err := c.Prompt(ctx, "> ")
		if err != nil {
			return 0, err
		}
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		c.Say("invalid choice %q, try again", raw)
	}
}

// Code implements Prompter.
func (c *Console) Code(ctx context.Context, handle string) (string, error) {
	return c.Prompt(ctx, fmt.Sprintf("Login code sent to %s: ", handle))
}

// Password implements Prompter.
func (c *Console) Password(ctx context.Context, handle string) (string, error) {
	return c.Prompt(ctx, fmt.Sprintf("Two-factor password for %s: ", handle))
}
