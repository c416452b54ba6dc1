package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

const maxAvatarSize = 10 << 20

var errNotAnImage = errors.New("file is not an image")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type imageUpload struct {
	Data        []byte
	ContentType string
	Ext         string
}

// readImageUpload reads one image from the multipart field. The content type
// is sniffed from the bytes; the client supplied one is ignored.
func readImageUpload(r *http.Request, field string) (imageUpload, error) {
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		return imageUpload{}, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return imageUpload{}, fmt.Errorf("missing %s file: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarSize+1))
	if err != nil {
		return imageUpload{}, err
	}
	if len(data) > maxAvatarSize {
		return imageUpload{}, fmt.Errorf("%s is larger than %d bytes", field, maxAvatarSize)
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return imageUpload{}, errNotAnImage
	}
	if given := strings.ToLower(filepath.Ext(header.Filename)); given == ".jpeg" && ext == ".jpg" {
		ext = given
	}
	return imageUpload{Data: data, ContentType: contentType, Ext: ext}, nil
}
