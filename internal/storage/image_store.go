package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrImageNotFound = errors.New("image not found")

const filenamePrefix = "generated_"

// ImageStore writes generated images to a local directory. Nothing is ever
// removed from it.
type ImageStore struct {
	basePath string
}

type StoredImage struct {
	Filename string
	Path     string
}

func NewImageStore(basePath string) (*ImageStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := EnsureDir(basePath); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	return &ImageStore{basePath: abs}, nil
}

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func (store *ImageStore) BasePath() string {
	return store.basePath
}

// StoreImage decodes imageData and writes it as PNG under a fresh unique
// filename.
func (store *ImageStore) StoreImage(ctx context.Context, imageData []byte) (*StoredImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decodedImage, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	filename := filenamePrefix + uuid.New().String() + ".png"
	imagePath := filepath.Join(store.basePath, filename)

	imageFile, err := os.OpenFile(imagePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create image file: %w", err)
	}

	if err := png.Encode(imageFile, decodedImage); err != nil {
		imageFile.Close()
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := imageFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}

	log.Info().Str("path", imagePath).Str("source_format", format).Msg("Stored image")

	return &StoredImage{Filename: filename, Path: imagePath}, nil
}

// Open returns the stored file called filename. Names that would escape the
// store directory are reported as not found.
func (store *ImageStore) Open(filename string) (*os.File, error) {
	name, ok := cleanFilename(filename)
	if !ok {
		return nil, ErrImageNotFound
	}

	f, err := os.Open(filepath.Join(store.basePath, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("filename", name).Msg("Failed to open image file")
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, ErrImageNotFound
	}
	return f, nil
}

func cleanFilename(filename string) (string, bool) {
	filename = strings.TrimSpace(filename)
	if filename == "" || filename == "." || filename == ".." {
		return "", false
	}
	if strings.ContainsAny(filename, `/\`) || filepath.Base(filename) != filename {
		return "", false
	}
	return filename, true
}
