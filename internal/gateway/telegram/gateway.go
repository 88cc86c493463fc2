// Package telegram implements the dispatch session gateway on MTProto
// user accounts via gotd/td.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"groupcast/internal/dispatch"
	"groupcast/internal/operator"
	"groupcast/internal/store"
	logx "groupcast/pkg/logx"
)

// rpc errors that mean "this account cannot post to this group".
var forbiddenTypes = []string{
	"CHAT_WRITE_FORBIDDEN",
	"USER_BANNED_IN_CHANNEL",
	"CHAT_ADMIN_REQUIRED",
	"CHANNEL_PRIVATE",
	"CHAT_RESTRICTED",
}

type Config struct {
	// SessionDir holds one MTProto session file per handle, so an
	// account only goes through the code flow once.
	SessionDir string
}

// Gateway authenticates accounts and hands out live sessions.
type Gateway struct {
	cfg      Config
	prompter operator.Prompter
	log      logx.Logger
}

func New(cfg Config, prompter operator.Prompter, log logx.Logger) (*Gateway, error) {
	if err := os.MkdirAll(cfg.SessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("telegram: create session dir: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{cfg: cfg, prompter: prompter, log: log}, nil
}

// Authenticate connects and logs the account in, prompting the operator
// for a code or 2FA password when Telegram asks. The returned session
// stays connected until Close.
func (g *Gateway) Authenticate(ctx context.Context, acct store.Account) (dispatch.Session, error) {
	apiID, err := strconv.Atoi(acct.APIID)
	if err != nil {
		return nil, fmt.Errorf("telegram: api id %q is not numeric: %w", acct.APIID, err)
	}

	client := telegram.NewClient(apiID, acct.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: filepath.Join(g.cfg.SessionDir, acct.Handle+".session.json"),
		},
	})

	s := &session{
		handle: acct.Handle,
		log:    g.log.With(logx.String("handle", acct.Handle)),
		stop:   make(chan struct{}),
		done:   make(chan error, 1),
	}
	ready := make(chan struct{})

	go func() {
		s.done <- client.Run(ctx, func(runCtx context.Context) error {
			flow := auth.NewFlow(
				operatorAuth{handle: acct.Handle, prompter: g.prompter},
				auth.SendCodeOptions{},
			)
			if err := client.Auth().IfNecessary(runCtx, flow); err != nil {
				return fmt.Errorf("login flow: %w", err)
			}

			s.api = tg.NewClient(client)
			close(ready)

			// Keep the connection up until the session is closed.
			select {
			case <-s.stop:
				return nil
			case <-runCtx.Done():
				return runCtx.Err()
			}
		})
	}()

	select {
	case err := <-s.done:
		if err == nil {
			err = fmt.Errorf("connection closed before login completed")
		}
		return nil, err
	case <-ctx.Done():
		close(s.stop)
		<-s.done
		return nil, ctx.Err()
	case <-ready:
		return s, nil
	}
}

// session is one live MTProto connection. Owned by a single job
// goroutine; not safe for concurrent use, which matches the engine's
// strictly sequential per-account send loop.
type session struct {
	handle string
	log    logx.Logger
	api    *tg.Client

	peersMu sync.Mutex
	peers   map[int64]tg.InputPeerClass

	stop chan struct{}
	done chan error

	closeOnce sync.Once
}

// Groups enumerates the account's dialogs and keeps the ones that are
// actual groups: basic chats and megagroup channels. Broadcast channels
// and private chats are not broadcast targets.
func (s *session) Groups(ctx context.Context) ([]dispatch.Group, error) {
	res, err := s.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		Limit:      100,
		OffsetPeer: &tg.InputPeerEmpty{},
	})
	if err != nil {
		return nil, fmt.Errorf("get dialogs: %w", err)
	}
	modified, ok := res.AsModified()
	if !ok {
		return nil, nil
	}

	chats := modified.GetChats()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.peers = make(map[int64]tg.InputPeerClass)

	var out []dispatch.Group
	for _, raw := range modified.GetDialogs() {
		d, ok := raw.(*tg.Dialog)
		if !ok {
			continue
		}
		switch peer := d.Peer.(type) {
		case *tg.PeerChat:
			if c := findChat(chats, peer.ChatID); c != nil {
				s.peers[c.ID] = &tg.InputPeerChat{ChatID: c.ID}
				out = append(out, dispatch.Group{ID: c.ID, Title: c.Title})
			}
		case *tg.PeerChannel:
			if ch := findChannel(chats, peer.ChannelID); ch != nil && ch.Megagroup {
				s.peers[ch.ID] = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
				out = append(out, dispatch.Group{ID: ch.ID, Title: ch.Title})
			}
		}
	}
	s.log.Debug("dialogs enumerated",
		logx.Int("dialogs", len(modified.GetDialogs())), logx.Int("groups", len(out)))
	return out, nil
}

// Send delivers text to one group, translating Telegram RPC failures
// into the engine's error taxonomy.
func (s *session) Send(ctx context.Context, g dispatch.Group, text string) error {
	s.peersMu.Lock()
	peer, ok := s.peers[g.ID]
	s.peersMu.Unlock()
	if !ok {
		return fmt.Errorf("no input peer for group %d (enumerate first)", g.ID)
	}

	_, err := s.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int63(),
	})
	if err == nil {
		return nil
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &dispatch.RateLimitedError{RetryAfter: wait + time.Second}
	}
	if tgerr.Is(err, forbiddenTypes...) {
		return &dispatch.ForbiddenError{GroupID: g.ID}
	}
	return fmt.Errorf("send to %d: %w", g.ID, err)
}

// Close shuts the connection down and waits for the client goroutine.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = <-s.done
	})
	if errors.Is(err, context.Canceled) {
		// Cancellation is the caller's doing, not a close failure.
		return nil
	}
	return err
}

func findChat(chats []tg.ChatClass, id int64) *tg.Chat {
	for _, raw := range chats {
		if c, ok := raw.(*tg.Chat); ok && c.ID == id {
			return c
		}
	}
	return nil
}

func findChannel(chats []tg.ChatClass, id int64) *tg.Channel {
	for _, raw := range chats {
		if c, ok := raw.(*tg.Channel); ok && c.ID == id {
			return c
		}
	}
	return nil
}
