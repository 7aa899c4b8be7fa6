package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/config"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
)

// Cloudinary implements ObjectStorage on the Cloudinary upload API.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinary builds a client from account credentials.
func NewCloudinary(cfg config.CloudinaryConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &Cloudinary{cld: cld}, nil
}

// Upload stores data under objectPath; the last path element becomes the public id.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, objectPath string) (domain.MediaEntry, error) {
	folder, name := SplitObjectPath(objectPath)
	if name == "" {
		return domain.MediaEntry{}, fmt.Errorf("cloudinary: empty object name in %q", objectPath)
	}
	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:   folder,
		PublicID: name,
	})
	if err != nil {
		return domain.MediaEntry{}, fmt.Errorf("cloudinary: upload %s: %w", objectPath, err)
	}
	if res.Error.Message != "" {
		return domain.MediaEntry{}, fmt.Errorf("cloudinary: upload %s: %s", objectPath, res.Error.Message)
	}
	if res.PublicID == "" || res.SecureURL == "" {
		return domain.MediaEntry{}, errors.New("cloudinary: upload returned no public id")
	}
	return domain.MediaEntry{RemoteURL: res.SecureURL, RemoteID: res.PublicID}, nil
}

// Delete destroys the object. An object that is already gone counts as deleted.
func (c *Cloudinary) Delete(ctx context.Context, remoteID string) error {
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: remoteID})
	if err != nil {
		return fmt.Errorf("cloudinary: destroy %s: %w", remoteID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary: destroy %s: %s", remoteID, res.Error.Message)
	}
	switch res.Result {
	case "ok", "not found":
		return nil
	default:
		return fmt.Errorf("cloudinary: destroy %s: unexpected result %q", remoteID, res.Result)
	}
}
