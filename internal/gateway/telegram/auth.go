package telegram

import (
	"context"
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"groupcast/internal/operator"
)

// operatorAuth adapts the operator prompter to gotd's login flow: the
// phone comes from stored credentials, code and 2FA password are asked
// interactively when Telegram requires them.
type operatorAuth struct {
	handle   string
	prompter operator.Prompter
}

var _ auth.UserAuthenticator = operatorAuth{}

func (a operatorAuth) Phone(_ context.Context) (string, error) {
	return a.handle, nil
}

func (a operatorAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.prompter.Code(ctx, a.handle)
}

func (a operatorAuth) Password(ctx context.Context) (string, error) {
	return a.prompter.Password(ctx, a.handle)
}

func (a operatorAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a operatorAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	// These are pre-registered accounts; never create a new one.
	return auth.UserInfo{}, errors.New("sign up is not supported")
}
