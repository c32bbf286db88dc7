package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// PostsCollection is the gateway collection holding posts.
	PostsCollection = "tweets"

	// FeedPageSize bounds every feed window.
	FeedPageSize = 25

	DefaultAuthorName = "Anonymous"
)

// Persisted field names. Kept for compatibility with existing stores.
const (
	FieldBody       = "tweet"
	FieldCreatedAt  = "createdAt"
	FieldAuthorName = "username"
	FieldAuthorID   = "userId"
	FieldPhoto      = "photo"
)

// Post is a single feed entry.
type Post struct {
	ID         string
	AuthorID   string
	AuthorName string // Snapshot at post time, not kept in sync.
	Body       string
	CreatedAt  time.Time
	PhotoURL   string
}

// OwnedBy reports whether accountID may mutate the post. This is a local
// fast-fail; the gateway enforces the real rule.
func (p Post) OwnedBy(accountID string) bool {
	return accountID != "" && p.AuthorID == accountID
}

// HasPhoto reports whether a photo is attached.
func (p Post) HasPhoto() bool {
	return p.PhotoURL != ""
}

// PhotoPath is the blob location for the post's photo.
func (p Post) PhotoPath() string {
	return PostPhotoPath(p.AuthorID, p.ID)
}

// PostPhotoPath is the blob location keyed by (author, post).
func PostPhotoPath(authorID, postID string) string {
	return "tweets/" + authorID + "/" + postID
}

// Fields encodes the post into its persisted record shape.
func (p Post) Fields() map[string]any {
	f := map[string]any{
		FieldBody:       p.Body,
		FieldCreatedAt:  p.CreatedAt.UnixMilli(),
		FieldAuthorName: p.AuthorName,
		FieldAuthorID:   p.AuthorID,
	}
	if p.PhotoURL != "" {
		f[FieldPhoto] = p.PhotoURL
	}
	return f
}

// Record is a raw document as returned by the gateway.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// PostFromRecord decodes a persisted post.
func PostFromRecord(r Record) (Post, error) {
	if r.ID == "" {
		return Post{}, fmt.Errorf("record has no id")
	}
	body, ok := r.Fields[FieldBody].(string)
	if !ok {
		return Post{}, fmt.Errorf("record %s: missing %q", r.ID, FieldBody)
	}
	authorID, ok := r.Fields[FieldAuthorID].(string)
	if !ok || authorID == "" {
		return Post{}, fmt.Errorf("record %s: missing %q", r.ID, FieldAuthorID)
	}
	millis, err := toMillis(r.Fields[FieldCreatedAt])
	if err != nil {
		return Post{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	name, _ := r.Fields[FieldAuthorName].(string)
	if name == "" {
		name = DefaultAuthorName
	}
	photo, _ := r.Fields[FieldPhoto].(string)

	return Post{
		ID:         r.ID,
		AuthorID:   authorID,
		AuthorName: name,
		Body:       body,
		CreatedAt:  time.UnixMilli(millis),
		PhotoURL:   photo,
	}, nil
}

func toMillis(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("invalid %q", FieldCreatedAt)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("missing %q", FieldCreatedAt)
	}
}

// SortPosts orders posts newest first. Ties fall back to ID so the order is
// stable across pushes.
func SortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
