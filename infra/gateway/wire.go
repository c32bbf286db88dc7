package gateway

import "github.com/CrestNiraj12/nwitter/domain"

// Wire types of the gateway HTTP API. The local emulator serves the same
// shapes.

// VerificationHeader carries the bot-verification token on guarded calls.
const VerificationHeader = "X-Nwitter-Verification"

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type TokenResponse struct {
	IDToken string `json:"idToken"`
}

type ProfileRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoUrl,omitempty"`
}

type FieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

type IDResponse struct {
	ID string `json:"id"`
}

// QuerySpec is the wire form of domain.Query.
type QuerySpec struct {
	WhereField  string `json:"whereField,omitempty"`
	WhereEquals string `json:"whereEquals,omitempty"`
	OrderBy     string `json:"orderBy,omitempty"`
	Descending  bool   `json:"descending,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

func QuerySpecFrom(q domain.Query) QuerySpec {
	return QuerySpec{
		WhereField:  q.WhereField,
		WhereEquals: q.WhereEquals,
		OrderBy:     q.OrderBy,
		Descending:  q.Descending,
		Limit:       q.Limit,
	}
}

func (s QuerySpec) Query(collection string) domain.Query {
	return domain.Query{
		Collection:  collection,
		WhereField:  s.WhereField,
		WhereEquals: s.WhereEquals,
		OrderBy:     s.OrderBy,
		Descending:  s.Descending,
		Limit:       s.Limit,
	}
}

type RecordsResponse struct {
	Records []domain.Record `json:"records"`
}

// ListenMessage is one push on a live query socket: either the full current
// window or an error.
type ListenMessage struct {
	Records []domain.Record `json:"records"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

type BlobResponse struct {
	Ref string `json:"ref"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type VerificationResponse struct {
	Token string `json:"token"`
}
