package app

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/CrestNiraj12/nwitter/domain"
)

// ProfileController edits the signed-in account's profile.
type ProfileController struct {
	auth  AuthGateway
	blobs BlobStore
}

func NewProfileController(auth AuthGateway, blobs BlobStore) *ProfileController {
	return &ProfileController{auth: auth, blobs: blobs}
}

// RenameDisplayName overwrites the display name. Posts keep the name they
// were written with.
func (c *ProfileController) RenameDisplayName(ctx context.Context, name string) (domain.Account, error) {
	if _, ok := c.auth.Current(); !ok {
		return domain.Account{}, domain.ErrUnauthorized
	}
	if err := domain.ValidateRename(name); err != nil {
		return domain.Account{}, err
	}
	acct, err := c.auth.UpdateProfile(ctx, domain.ProfileUpdate{DisplayName: &name})
	if err != nil {
		glog.Errorf("rename: %v", err)
		return domain.Account{}, fmt.Errorf("renaming: %w", err)
	}
	return acct, nil
}

// ChangeAvatar uploads the photo to the account's fixed avatar location and
// points the profile at it.
func (c *ProfileController) ChangeAvatar(ctx context.Context, photo domain.Photo) (domain.Account, error) {
	acct, ok := c.auth.Current()
	if !ok {
		return domain.Account{}, domain.ErrUnauthorized
	}
	if err := domain.ValidatePhoto(photo); err != nil {
		return domain.Account{}, err
	}
	ref, err := c.blobs.Upload(ctx, acct.AvatarPath(), photo)
	if err != nil {
		glog.Errorf("avatar upload %s: %v", acct.ID, err)
		return domain.Account{}, fmt.Errorf("uploading avatar: %w", err)
	}
	url, err := c.blobs.DownloadURL(ctx, ref)
	if err != nil {
		glog.Errorf("avatar url %s: %v", acct.ID, err)
		return domain.Account{}, fmt.Errorf("resolving avatar url: %w", err)
	}
	updated, err := c.auth.UpdateProfile(ctx, domain.ProfileUpdate{AvatarURL: &url})
	if err != nil {
		glog.Errorf("avatar profile %s: %v", acct.ID, err)
		return domain.Account{}, fmt.Errorf("saving avatar: %w", err)
	}
	return updated, nil
}
