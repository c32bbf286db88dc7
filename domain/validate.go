package domain

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinBodyRunes = 1
	MaxBodyRunes = 180

	MinRegisterNameRunes = 2
	MinRenameRunes       = 1
	MaxNameRunes         = 10
	DisallowedNameWord   = "admin"

	MinEmailLen    = 11
	MinPasswordLen = 6

	// MaxPhotoBytes is the 1 MiB attachment cap.
	MaxPhotoBytes = 1 << 20
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidateBody checks the post body bounds in code points. The body is not
// trimmed: what the user typed is what gets stored.
func ValidateBody(body string) error {
	n := utf8.RuneCountInString(body)
	if n < MinBodyRunes {
		return ErrEmptyPost
	}
	if n > MaxBodyRunes {
		return ErrPostTooLong
	}
	return nil
}

// ValidateRegisterName applies the sign-up rules for display names.
// The disallowed word is checked before length so that it is reported even
// for overlong names.
func ValidateRegisterName(name string) error {
	if name != "" && strings.Contains(strings.ToLower(name), DisallowedNameWord) {
		return ErrNameDisallowed
	}
	return validateName(name, MinRegisterNameRunes)
}

// ValidateRename applies the profile rename rules.
func ValidateRename(name string) error {
	return validateName(name, MinRenameRunes)
}

func validateName(name string, min int) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return ErrNameRequired
	case n < min:
		return ErrNameTooShort
	case n > MaxNameRunes:
		return ErrNameTooLong
	}
	return nil
}

// ValidateEmail checks the address shape and, when allowedDomain is set, that
// the address belongs to it.
func ValidateEmail(email, allowedDomain string) error {
	if len(email) < MinEmailLen || !emailRe.MatchString(email) {
		return ErrEmailInvalid
	}
	if allowedDomain != "" && !strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(allowedDomain)) {
		return ErrEmailDomain
	}
	return nil
}

// ValidateRegistration runs every sign-up check in form order.
func ValidateRegistration(r Registration, allowedDomain string) error {
	if err := ValidateRegisterName(r.Name); err != nil {
		return err
	}
	if err := ValidateEmail(r.Email, allowedDomain); err != nil {
		return err
	}
	if len(r.Password) < MinPasswordLen || len(r.ConfirmPassword) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}

// Photo is an attachment candidate read from disk.
type Photo struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the attachment size in bytes.
func (p Photo) Size() int64 {
	return int64(len(p.Data))
}

// ValidatePhoto enforces the size cap and sniffs the content type.
func ValidatePhoto(p Photo) error {
	if p.Size() > MaxPhotoBytes {
		return ErrPhotoTooLarge
	}
	ct := p.ContentType
	if ct == "" {
		ct = http.DetectContentType(p.Data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return ErrPhotoNotImage
	}
	return nil
}

// SinglePhoto validates a file selection: exactly one file, within limits.
func SinglePhoto(files []Photo) (Photo, error) {
	if len(files) != 1 {
		return Photo{}, ErrPhotoCount
	}
	if err := ValidatePhoto(files[0]); err != nil {
		return Photo{}, err
	}
	return files[0], nil
}
