package app

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
)

// PostController creates, edits and deletes posts and their photos.
//
// Ownership checks here only fail fast on the client. The gateway's access
// rules are the real authority.
type PostController struct {
	session  Session
	docs     DocumentStore
	blobs    BlobStore
	verifier Verifier
	now      func() time.Time
}

// NewPostController wires the controller. verifier may be nil when bot
// verification is disabled.
func NewPostController(session Session, docs DocumentStore, blobs BlobStore, verifier Verifier) *PostController {
	return &PostController{
		session:  session,
		docs:     docs,
		blobs:    blobs,
		verifier: verifier,
		now:      time.Now,
	}
}

// Create writes the text record first and then, if a photo is given, uploads
// it and patches the record. A failed photo step returns the text-only post
// together with a *domain.PhotoError; the text is not rolled back.
func (c *PostController) Create(ctx context.Context, body string, photo *domain.Photo) (domain.Post, error) {
	acct, ok := c.session.Current()
	if !ok {
		return domain.Post{}, domain.ErrUnauthorized
	}
	if err := domain.ValidateBody(body); err != nil {
		return domain.Post{}, err
	}
	if photo != nil {
		if err := domain.ValidatePhoto(*photo); err != nil {
			return domain.Post{}, err
		}
	}
	ctx, err := verified(ctx, c.verifier)
	if err != nil {
		return domain.Post{}, err
	}

	post := domain.Post{
		AuthorID:   acct.ID,
		AuthorName: acct.Name(),
		Body:       body,
		CreatedAt:  time.UnixMilli(c.now().UnixMilli()),
	}
	id, err := c.docs.AddRecord(ctx, domain.PostsCollection, post.Fields())
	if err != nil {
		glog.Errorf("create post: %v", err)
		return domain.Post{}, fmt.Errorf("creating post: %w", err)
	}
	post.ID = id

	if photo == nil {
		return post, nil
	}
	url, err := c.attach(ctx, post, *photo)
	if err != nil {
		glog.Errorf("create post %s: photo: %v", id, err)
		return post, &domain.PhotoError{PostID: id, Err: err}
	}
	post.PhotoURL = url
	return post, nil
}

// Edit replaces the body of an owned post. CreatedAt and the photo are kept.
func (c *PostController) Edit(ctx context.Context, post domain.Post, body string) (domain.Post, error) {
	if err := c.owner(post); err != nil {
		return post, err
	}
	if err := domain.ValidateBody(body); err != nil {
		return post, err
	}
	err := c.docs.UpdateRecord(ctx, domain.PostsCollection, post.ID, map[string]any{domain.FieldBody: body})
	if err != nil {
		glog.Errorf("edit post %s: %v", post.ID, err)
		return post, fmt.Errorf("editing post: %w", err)
	}
	post.Body = body
	return post, nil
}

// Delete removes an owned post and then its photo blob, if any. The two steps
// are not transactional: a failed blob delete after the record is gone yields
// a *domain.PhotoError with Orphaned set.
func (c *PostController) Delete(ctx context.Context, post domain.Post) error {
	if err := c.owner(post); err != nil {
		return err
	}
	if err := c.docs.DeleteRecord(ctx, domain.PostsCollection, post.ID); err != nil {
		glog.Errorf("delete post %s: %v", post.ID, err)
		return fmt.Errorf("deleting post: %w", err)
	}
	if !post.HasPhoto() {
		return nil
	}
	if err := c.blobs.Delete(ctx, post.PhotoPath()); err != nil {
		glog.Errorf("delete post %s: photo cleanup: %v", post.ID, err)
		return &domain.PhotoError{PostID: post.ID, Orphaned: true, Err: err}
	}
	return nil
}

// ReplacePhoto uploads a new photo for an owned post, overwriting the old
// blob, and patches the record.
func (c *PostController) ReplacePhoto(ctx context.Context, post domain.Post, photo domain.Photo) (domain.Post, error) {
	if err := c.owner(post); err != nil {
		return post, err
	}
	if err := domain.ValidatePhoto(photo); err != nil {
		return post, err
	}
	url, err := c.attach(ctx, post, photo)
	if err != nil {
		glog.Errorf("replace photo %s: %v", post.ID, err)
		return post, fmt.Errorf("replacing photo: %w", err)
	}
	post.PhotoURL = url
	return post, nil
}

// RemovePhoto clears the photo field and then deletes the blob. A failed blob
// delete leaves the post without a photo and yields an orphan *domain.PhotoError.
func (c *PostController) RemovePhoto(ctx context.Context, post domain.Post) (domain.Post, error) {
	if err := c.owner(post); err != nil {
		return post, err
	}
	if !post.HasPhoto() {
		return post, domain.ErrNoPhoto
	}
	err := c.docs.UpdateRecord(ctx, domain.PostsCollection, post.ID, map[string]any{domain.FieldPhoto: nil})
	if err != nil {
		glog.Errorf("remove photo %s: %v", post.ID, err)
		return post, fmt.Errorf("removing photo: %w", err)
	}
	post.PhotoURL = ""
	if err := c.blobs.Delete(ctx, post.PhotoPath()); err != nil {
		glog.Errorf("remove photo %s: blob: %v", post.ID, err)
		return post, &domain.PhotoError{PostID: post.ID, Orphaned: true, Err: err}
	}
	return post, nil
}

func (c *PostController) attach(ctx context.Context, post domain.Post, photo domain.Photo) (string, error) {
	ref, err := c.blobs.Upload(ctx, post.PhotoPath(), photo)
	if err != nil {
		return "", fmt.Errorf("uploading photo: %w", err)
	}
	url, err := c.blobs.DownloadURL(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("resolving photo url: %w", err)
	}
	err = c.docs.UpdateRecord(ctx, domain.PostsCollection, post.ID, map[string]any{domain.FieldPhoto: url})
	if err != nil {
		return "", fmt.Errorf("saving photo url: %w", err)
	}
	return url, nil
}

func (c *PostController) owner(post domain.Post) error {
	acct, ok := c.session.Current()
	if !ok {
		return domain.ErrUnauthorized
	}
	if post.ID == "" || !post.OwnedBy(acct.ID) {
		return domain.ErrNotOwner
	}
	return nil
}
