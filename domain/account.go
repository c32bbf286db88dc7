package domain

// Account is the signed-in identity.
type Account struct {
	ID            string
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
}

// Name returns the display name, falling back to the default author name.
func (a Account) Name() string {
	if a.DisplayName == "" {
		return DefaultAuthorName
	}
	return a.DisplayName
}

// AvatarPath is the fixed blob location of the account's avatar. Each upload
// overwrites the previous one.
func (a Account) AvatarPath() string {
	return "avatars/" + a.ID
}

// ProfileUpdate carries optional profile changes. Nil fields are left alone.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
}

// Registration is the input of the sign-up form.
type Registration struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Provider names a federated identity provider.
type Provider string

const ProviderGoogle Provider = "google.com"
