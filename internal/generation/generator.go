package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cheahjs/sdwebui-panel/internal/params"
	"github.com/cheahjs/sdwebui-panel/internal/sdwebui"
	"github.com/cheahjs/sdwebui-panel/internal/storage"
)

// StableDiffusionAPI is the subset of the WebUI client the generator needs.
type StableDiffusionAPI interface {
	Available(ctx context.Context) bool
	TextToImage(ctx context.Context, req *sdwebui.GenerateRequest) (*sdwebui.GenerateResponse, error)
	ImageToImage(ctx context.Context, req *sdwebui.GenerateRequest) (*sdwebui.GenerateResponse, error)
}

type ImageStore interface {
	StoreImage(ctx context.Context, imageData []byte) (*storage.StoredImage, error)
}

type Config struct {
	API   StableDiffusionAPI
	Store ImageStore
	// ImageURLPrefix is prepended to stored filenames to build imageUrl.
	ImageURLPrefix string
}

type Generator struct {
	api            StableDiffusionAPI
	store          ImageStore
	imageURLPrefix string
}

// Result is the success envelope returned to the panel.
type Result struct {
	Success    bool              `json:"success"`
	ImageURL   string            `json:"imageUrl"`
	ImagePath  string            `json:"imagePath"`
	Prompt     string            `json:"prompt"`
	Parameters params.Parameters `json:"parameters"`
	Info       json.RawMessage   `json:"info"`
}

func New(cfg Config) (*Generator, error) {
	if cfg.API == nil {
		return nil, errors.New("missing stable diffusion API")
	}
	if cfg.Store == nil {
		return nil, errors.New("missing image store")
	}

	prefix := cfg.ImageURLPrefix
	if prefix == "" {
		prefix = "/generated"
	}

	return &Generator{
		api:            cfg.API,
		store:          cfg.Store,
		imageURLPrefix: strings.TrimRight(prefix, "/"),
	}, nil
}

// Generate resolves defaults, checks the WebUI is up, runs txt2img or
// img2img and stores the first returned image. params.ErrPromptRequired is
// returned unwrapped; every other failure is an *Error.
//
// The upstream call is not tied to ctx cancellation: once sent, a
// generation runs to completion even if the caller goes away.
func (g *Generator) Generate(ctx context.Context, p params.Parameters) (*Result, error) {
	resolved, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	mode := resolved.Mode()
	logger := log.With().Str("mode", string(mode)).Logger()

	if !g.api.Available(ctx) {
		logger.Error().Msg("Stable Diffusion WebUI is not running")
		return nil, &Error{Message: ErrServiceUnavailable.Error(), Details: ErrServiceUnavailable.Error(), Err: ErrServiceUnavailable}
	}

	req := convertRequest(resolved)
	logger.Info().
		Interface("parameters", resolved.WithoutImages()).
		Bool("mask", resolved.HasMask()).
		Msgf("Sending %s request to Stable Diffusion WebUI", mode)

	start := time.Now()
	var resp *sdwebui.GenerateResponse
	if mode == params.ModeImg2Img {
		resp, err = g.api.ImageToImage(ctx, req)
	} else {
		resp, err = g.api.TextToImage(ctx, req)
	}
	if err != nil {
		genErr := translateError(err)
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Error generating image")
		return nil, genErr
	}

	if len(resp.Images) == 0 {
		logger.Error().Dur("duration", time.Since(start)).Msg("No image in Stable Diffusion response")
		return nil, &Error{Message: ErrNoImage.Error(), Details: ErrNoImage.Error(), Err: ErrNoImage}
	}

	imageData, err := decodeImage(resp.Images[0])
	if err != nil {
		logger.Error().Err(err).Msg("Failed to decode generated image")
		return nil, translateError(err)
	}

	stored, err := g.store.StoreImage(ctx, imageData)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store generated image")
		return nil, translateError(err)
	}

	info := resp.Info
	if len(info) == 0 || string(info) == "null" {
		info = json.RawMessage("{}")
	}

	logger.Info().
		Str("file", stored.Filename).
		Dur("duration", time.Since(start)).
		Msg("Image generated")

	return &Result{
		Success:    true,
		ImageURL:   g.imageURLPrefix + "/" + stored.Filename,
		ImagePath:  stored.Path,
		Prompt:     resolved.Prompt,
		Parameters: resolved.WithoutImages(),
		Info:       info,
	}, nil
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return data, nil
}
