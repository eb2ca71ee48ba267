// Package media validates rescue attachments and uploads them to the media
// store. Only the returned URLs are kept on the case.
package media

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/models"
)

// Kind separates images from video
type Kind string

// Media kinds
const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Size limits per file
const (
	MaxImageBytes = 10 << 20
	MaxVideoBytes = 200 << 20
)

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var videoTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
}

// File is one uploaded attachment
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Kind reports whether the file is an image or a video from its content type
func (f File) Kind() Kind {
	if strings.HasPrefix(f.ContentType, "video/") {
		return KindVideo
	}
	return KindImage
}

// Uploader stores a file and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// Validate checks content types, sizes and counts of a case's attachments
func Validate(files []File) error {
	images, videos := 0, 0
	for _, f := range files {
		switch {
		case imageTypes[f.ContentType]:
			images++
			if f.Size > MaxImageBytes {
				return models.Errorf(models.KindBadRequest, "image %s is larger than 10MB", f.Name)
			}
		case videoTypes[f.ContentType]:
			videos++
			if f.Size > MaxVideoBytes {
				return models.Errorf(models.KindBadRequest, "video %s is larger than 200MB", f.Name)
			}
		default:
			return models.Errorf(models.KindBadRequest, "file type %s is not allowed", f.ContentType)
		}
	}
	if images > models.MaxCaseImages {
		return models.Errorf(models.KindBadRequest, "at most %d images are allowed", models.MaxCaseImages)
	}
	if videos > 1 {
		return models.Errorf(models.KindBadRequest, "at most one video is allowed")
	}
	return nil
}

// UploadAll uploads files in order and splits the URLs into images and video.
// A file that fails to upload is logged and left out.
func UploadAll(ctx context.Context, u Uploader, files []File) ([]string, string) {
	images := []string{}
	video := ""
	for _, f := range files {
		url, err := u.Upload(ctx, f)
		if err != nil {
			zap.S().Warnw("failed to upload rescue attachment", "file", f.Name, "contentType", f.ContentType, "error", err)
			continue
		}
		if f.Kind() == KindVideo {
			video = url
		} else {
			images = append(images, url)
		}
	}
	return images, video
}
