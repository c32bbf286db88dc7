package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates there is no signed-in account.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotOwner indicates an attempt to mutate a post owned by someone else.
	ErrNotOwner = errors.New("post belongs to a different account")

	// ErrEmptyPost indicates the user submitted an empty post.
	ErrEmptyPost = errors.New("post cannot be empty")

	// ErrPostTooLong indicates the post exceeds the character limit.
	ErrPostTooLong = errors.New("post exceeds character limit")

	ErrNameRequired   = errors.New("name is required")
	ErrNameTooShort   = errors.New("name is too short")
	ErrNameTooLong    = errors.New("name is too long")
	ErrNameDisallowed = errors.New("name contains a disallowed word")

	ErrEmailInvalid     = errors.New("email is invalid")
	ErrEmailDomain      = errors.New("email domain is not allowed")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrEmailNotVerified blocks sign-in until the verification mail is confirmed.
	ErrEmailNotVerified = errors.New("email is not verified")

	// ErrBotVerification indicates no verification token could be obtained.
	ErrBotVerification = errors.New("bot verification failed")

	ErrPhotoTooLarge = errors.New("photo exceeds size limit")
	ErrPhotoCount    = errors.New("select exactly one photo")
	ErrPhotoNotImage = errors.New("photo is not an image")
	ErrNoPhoto       = errors.New("post has no photo")
)

// GatewayError is a rejection reported by the gateway itself, as opposed to a
// transport failure.
type GatewayError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsGatewayError reports whether err carries a known gateway rejection.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// PhotoError reports a failed photo step that ran after the text record was
// already written or deleted. The record change is kept; only the photo step
// failed.
type PhotoError struct {
	PostID string
	// Orphaned is set when the record is gone but its blob may remain.
	Orphaned bool
	Err      error
}

func (e *PhotoError) Error() string {
	if e.Orphaned {
		return fmt.Sprintf("post %s deleted, photo cleanup failed: %v", e.PostID, e.Err)
	}
	return fmt.Sprintf("post %s saved without photo: %v", e.PostID, e.Err)
}

func (e *PhotoError) Unwrap() error { return e.Err }

var inlineMessages = []struct {
	err error
	msg string
}{
	{ErrUnauthorized, "Please sign in again."},
	{ErrNotOwner, "You can only change your own posts."},
	{ErrEmptyPost, "Post must not be empty."},
	{ErrPostTooLong, fmt.Sprintf("Posts can be up to %d characters long.", MaxBodyRunes)},
	{ErrNameRequired, "Name is required."},
	{ErrNameTooShort, fmt.Sprintf("Name must be at least %d characters.", MinRegisterNameRunes)},
	{ErrNameTooLong, fmt.Sprintf("Name must be at most %d characters.", MaxNameRunes)},
	{ErrNameDisallowed, fmt.Sprintf("No '%s' in name.", DisallowedNameWord)},
	{ErrEmailInvalid, "Enter a valid e-mail."},
	{ErrEmailDomain, "That e-mail domain is not allowed."},
	{ErrPasswordTooShort, fmt.Sprintf("Password must be at least %d characters.", MinPasswordLen)},
	{ErrPasswordMismatch, "Passwords are different."},
	{ErrEmailNotVerified, "E-mail is not verified yet."},
	{ErrBotVerification, "Verification failed. Try again."},
	{ErrPhotoTooLarge, "Attach an image smaller than 1MB."},
	{ErrPhotoCount, "Select one image file."},
	{ErrPhotoNotImage, "Only image files can be attached."},
	{ErrNoPhoto, "This post has no photo."},
}

// Describe maps an error to the short message shown next to a form.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var pe *PhotoError
	if errors.As(err, &pe) {
		if pe.Orphaned {
			return "Post deleted, but its photo could not be removed."
		}
		return "Posted, but the photo upload failed."
	}
	for _, m := range inlineMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return "Network error. Please try again."
}
