package app

import (
	"context"
	"fmt"

	"github.com/CrestNiraj12/nwitter/domain"
)

// Verifier obtains a bot-verification token from the gateway. A nil Verifier
// means verification is disabled.
type Verifier interface {
	Token(ctx context.Context) (string, error)
}

type verificationKey struct{}

// WithVerification attaches a verification token to outgoing gateway calls.
func WithVerification(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, verificationKey{}, token)
}

// VerificationFrom returns the token attached by WithVerification.
func VerificationFrom(ctx context.Context) string {
	token, _ := ctx.Value(verificationKey{}).(string)
	return token
}

func verified(ctx context.Context, v Verifier) (context.Context, error) {
	if v == nil {
		return ctx, nil
	}
	token, err := v.Token(ctx)
	if err != nil {
		return ctx, fmt.Errorf("%w: %v", domain.ErrBotVerification, err)
	}
	if token == "" {
		return ctx, domain.ErrBotVerification
	}
	return WithVerification(ctx, token), nil
}
