package app

import (
	"context"

	"github.com/CrestNiraj12/nwitter/domain"
)

// Session exposes the currently signed-in account, if any.
type Session interface {
	Current() (domain.Account, bool)
}

// AuthGateway is the gateway's authentication surface.
type AuthGateway interface {
	Session

	// AwaitReady blocks until the first definitive auth state is known.
	AwaitReady(ctx context.Context) error

	CreateAccount(ctx context.Context, email, password string) (domain.Account, error)
	SignIn(ctx context.Context, email, password string) (domain.Account, error)
	SignInWithProvider(ctx context.Context, provider domain.Provider) (domain.Account, error)
	SignOut(ctx context.Context) error

	// SendVerificationEmail mails a verification link to the signed-in account.
	SendVerificationEmail(ctx context.Context) error
	SendPasswordResetEmail(ctx context.Context, email string) error

	// UpdateProfile patches the signed-in account and returns the result.
	UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (domain.Account, error)
}

// DocumentStore is the gateway's record store.
type DocumentStore interface {
	AddRecord(ctx context.Context, collection string, fields map[string]any) (string, error)

	// UpdateRecord merges fields into the record. A nil value clears a field.
	UpdateRecord(ctx context.Context, collection, id string, fields map[string]any) error
	DeleteRecord(ctx context.Context, collection, id string) error

	// Query runs a one-shot read of the window described by q.
	Query(ctx context.Context, q domain.Query) ([]domain.Record, error)

	// Subscribe opens a live query. fn receives the full current window on
	// every change, in emission order. The returned cancel func is idempotent.
	Subscribe(ctx context.Context, q domain.Query, fn func([]domain.Record, error)) (cancel func(), err error)
}

// BlobStore is the gateway's file storage.
type BlobStore interface {
	// Upload stores the photo at path, overwriting any previous blob, and
	// returns a reference to it.
	Upload(ctx context.Context, path string, photo domain.Photo) (string, error)
	DownloadURL(ctx context.Context, ref string) (string, error)
	Delete(ctx context.Context, path string) error
}
