package orchestrator

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

var ErrNotImage = errors.New("Please select an image file")

// EncodeDataURL wraps image bytes in a base64 data URL. The media type is
// sniffed from the content, and anything that is not an image is rejected.
func EncodeDataURL(data []byte) (string, error) {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func LoadImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	dataURL, err := EncodeDataURL(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return dataURL, nil
}

// StripDataURL returns the base64 payload of a data URL. Values without the
// data: scheme are assumed to be bare base64 already.
func StripDataURL(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}
