package media

import (
	"context"
	"errors"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// DefaultFolder is where rescue attachments are stored
const DefaultFolder = "pawsaarthi/rescue"

// ErrNotConfigured is returned when no media store is configured
var ErrNotConfigured = errors.New("media uploads are not configured")

// Cloudinary uploads attachments to a Cloudinary account
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinary builds an uploader from a cloudinary:// URL
func NewCloudinary(cloudinaryURL, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	if folder == "" {
		folder = DefaultFolder
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

// Upload streams f to Cloudinary and returns the secure URL
func (c *Cloudinary) Upload(ctx context.Context, f File) (string, error) {
	params := uploader.UploadParams{
		Folder:       c.folder,
		ResourceType: string(f.Kind()),
	}
	res, err := c.cld.Upload.Upload(ctx, f.Body, params)
	if err != nil {
		return "", err
	}
	if res.Error.Message != "" {
		return "", errors.New(res.Error.Message)
	}
	zap.S().Debugw("uploaded rescue attachment", "file", f.Name, "url", res.SecureURL)
	return res.SecureURL, nil
}

// Disabled rejects every upload
type Disabled struct{}

// Upload always fails with ErrNotConfigured
func (Disabled) Upload(context.Context, File) (string, error) {
	return "", ErrNotConfigured
}
