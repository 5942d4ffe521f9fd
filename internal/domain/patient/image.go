package patient

import (
	"path/filepath"
	"strconv"
	"strings"
)

// MaxImageSize is the largest accepted patient photo.
const MaxImageSize = 5 * 1024 * 1024

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ValidateImage checks the upload's extension and then its size.
func ValidateImage(img *ImageUpload) error {
	if img == nil {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(img.FileName))
	if !allowedImageExtensions[ext] {
		return newBusinessErrorf(InvalidImageType, ext)
	}
	if len(img.Data) > MaxImageSize {
		return newBusinessErrorf(ImageSizeExceeded, strconv.Itoa(len(img.Data)))
	}
	return nil
}
