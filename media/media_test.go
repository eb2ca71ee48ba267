package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawsaarthi/rescue-api/models"
)

func image(name string) File {
	return File{Name: name, ContentType: "image/jpeg", Size: 1024, Body: strings.NewReader("x")}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		files   []File
		wantErr bool
	}{
		{"none", nil, false},
		{"five images and a video", []File{image("1"), image("2"), image("3"), image("4"), image("5"), {Name: "v", ContentType: "video/mp4", Size: 1 << 20}}, false},
		{"six images", []File{image("1"), image("2"), image("3"), image("4"), image("5"), image("6")}, true},
		{"two videos", []File{{Name: "a", ContentType: "video/webm"}, {Name: "b", ContentType: "video/mp4"}}, true},
		{"pdf", []File{{Name: "doc.pdf", ContentType: "application/pdf"}}, true},
		{"large image", []File{{Name: "big.png", ContentType: "image/png", Size: MaxImageBytes + 1}}, true},
		{"large video", []File{{Name: "big.mov", ContentType: "video/quicktime", Size: MaxVideoBytes + 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.files)
			if tt.wantErr {
				assert.True(t, errors.Is(err, models.ErrBadRequest))
				return
			}
			assert.NoError(t, err)
		})
	}
}

type stubUploader struct {
	fail string
}

func (s stubUploader) Upload(_ context.Context, f File) (string, error) {
	if f.Name == s.fail {
		return "", errors.New("upload failed")
	}
	return "https://cdn.example.org/" + f.Name, nil
}

func TestUploadAllSkipsFailures(t *testing.T) {
	files := []File{image("a.jpg"), image("b.jpg"), {Name: "v.mp4", ContentType: "video/mp4"}}

	images, video := UploadAll(context.Background(), stubUploader{fail: "b.jpg"}, files)

	assert.Equal(t, []string{"https://cdn.example.org/a.jpg"}, images)
	assert.Equal(t, "https://cdn.example.org/v.mp4", video)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Upload(context.Background(), image("a.jpg"))
	assert.Equal(t, ErrNotConfigured, err)
}
