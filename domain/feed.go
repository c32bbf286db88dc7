package domain

// Scope selects the window of a feed. An empty AuthorID is the global
// timeline.
type Scope struct {
	AuthorID string
}

// Global is the scope of the home timeline.
var Global = Scope{}

// ByAuthor scopes a feed to one account's posts.
func ByAuthor(id string) Scope {
	return Scope{AuthorID: id}
}

// IsGlobal reports whether the scope covers all posts.
func (s Scope) IsGlobal() bool {
	return s.AuthorID == ""
}

// Admits reports whether p belongs in the scope's window.
func (s Scope) Admits(p Post) bool {
	return s.IsGlobal() || p.AuthorID == s.AuthorID
}

// Key identifies the scope, e.g. for persisting the last opened view.
func (s Scope) Key() string {
	if s.IsGlobal() {
		return "global"
	}
	return "author:" + s.AuthorID
}

// Query describes a bounded, ordered read of a collection.
type Query struct {
	Collection string
	// WhereField/WhereEquals filter by equality when WhereField is set.
	WhereField  string
	WhereEquals string
	OrderBy     string
	Descending  bool
	Limit       int
}

// FeedQuery is the live query backing a feed scope.
func FeedQuery(s Scope) Query {
	q := Query{
		Collection: PostsCollection,
		OrderBy:    FieldCreatedAt,
		Descending: true,
		Limit:      FeedPageSize,
	}
	if !s.IsGlobal() {
		q.WhereField = FieldAuthorID
		q.WhereEquals = s.AuthorID
	}
	return q
}

// FeedSnapshot is the full ordered window produced by one push. It replaces
// the previous snapshot wholesale.
type FeedSnapshot struct {
	Scope Scope
	Posts []Post
	// Err is set when the gateway reported a failure instead of a window.
	Err error
}
