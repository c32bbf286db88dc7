package app

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
)

// AccountController runs the sign-up, sign-in and recovery flows.
type AccountController struct {
	auth        AuthGateway
	verifier    Verifier
	emailDomain string
}

// NewAccountController wires the flows. emailDomain restricts sign-up to one
// mail domain when set; verifier may be nil.
func NewAccountController(auth AuthGateway, verifier Verifier, emailDomain string) *AccountController {
	return &AccountController{auth: auth, verifier: verifier, emailDomain: emailDomain}
}

// Register creates the account, mails a verification link, stores the display
// name and signs out again: the user must verify before signing in.
func (c *AccountController) Register(ctx context.Context, r domain.Registration) error {
	if err := domain.ValidateRegistration(r, c.emailDomain); err != nil {
		return err
	}
	ctx, err := verified(ctx, c.verifier)
	if err != nil {
		return err
	}
	if _, err := c.auth.CreateAccount(ctx, r.Email, r.Password); err != nil {
		glog.Errorf("register %s: %v", r.Email, err)
		return fmt.Errorf("creating account: %w", err)
	}
	// The new account is signed in from here on; always sign it out.
	defer func() {
		if err := c.auth.SignOut(context.WithoutCancel(ctx)); err != nil {
			glog.Errorf("register %s: sign out: %v", r.Email, err)
		}
	}()

	if err := c.auth.SendVerificationEmail(ctx); err != nil {
		glog.Errorf("register %s: verification mail: %v", r.Email, err)
		return fmt.Errorf("sending verification email: %w", err)
	}
	name := r.Name
	if _, err := c.auth.UpdateProfile(ctx, domain.ProfileUpdate{DisplayName: &name}); err != nil {
		glog.Errorf("register %s: display name: %v", r.Email, err)
		return fmt.Errorf("setting display name: %w", err)
	}
	return nil
}

// SignIn signs in with email and password. Unverified accounts are signed
// out again and rejected.
func (c *AccountController) SignIn(ctx context.Context, email, password string) (domain.Account, error) {
	if email == "" {
		return domain.Account{}, domain.ErrEmailInvalid
	}
	if len(password) < domain.MinPasswordLen {
		return domain.Account{}, domain.ErrPasswordTooShort
	}
	acct, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		glog.Errorf("sign in %s: %v", email, err)
		return domain.Account{}, fmt.Errorf("signing in: %w", err)
	}
	if !acct.EmailVerified {
		if err := c.auth.SignOut(ctx); err != nil {
			glog.Errorf("sign in %s: sign out unverified: %v", email, err)
		}
		return domain.Account{}, domain.ErrEmailNotVerified
	}
	return acct, nil
}

// SignInWithProvider runs a federated sign-in.
func (c *AccountController) SignInWithProvider(ctx context.Context, provider domain.Provider) (domain.Account, error) {
	acct, err := c.auth.SignInWithProvider(ctx, provider)
	if err != nil {
		glog.Errorf("sign in with %s: %v", provider, err)
		return domain.Account{}, fmt.Errorf("social sign in: %w", err)
	}
	return acct, nil
}

// SendPasswordReset mails a reset link.
func (c *AccountController) SendPasswordReset(ctx context.Context, email string) error {
	if err := domain.ValidateEmail(email, ""); err != nil {
		return err
	}
	if err := c.auth.SendPasswordResetEmail(ctx, email); err != nil {
		glog.Errorf("password reset %s: %v", email, err)
		return fmt.Errorf("sending password reset: %w", err)
	}
	return nil
}

// SignOut ends the session.
func (c *AccountController) SignOut(ctx context.Context) error {
	if err := c.auth.SignOut(ctx); err != nil {
		glog.Errorf("sign out: %v", err)
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}
