// Package orchestrator is the panel-side half of a generation: it validates
// and assembles the request, posts it to the panel backend and folds the
// outcome into State.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cheahjs/sdwebui-panel/internal/params"
)

const generatePath = "/api/generate"

var ErrEmptyPrompt = errors.New("empty prompt")

type Config struct {
	BaseURL string
	// HTTPClient must not set a Timeout; generations can run for minutes.
	HTTPClient *http.Client
	// OnState, when set, receives every state Run passes through.
	OnState func(State)
}

type Orchestrator struct {
	baseURL    string
	httpClient *http.Client
	onState    func(State)
}

// Input is everything the panel holds when generate is pressed. InputImage
// and Mask are data URLs and are only sent in img2img mode.
type Input struct {
	Params     params.Parameters
	Mode       params.Mode
	InputImage string
	Mask       string
}

type Result struct {
	Success    bool              `json:"success"`
	ImageURL   string            `json:"imageUrl"`
	ImagePath  string            `json:"imagePath"`
	Prompt     string            `json:"prompt"`
	Parameters params.Parameters `json:"parameters"`
	Info       json.RawMessage   `json:"info,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// RequestError is a failure reported by the backend itself, as opposed to
// one that prevented the request from completing.
type RequestError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *RequestError) Error() string {
	return e.Message
}

func New(cfg Config) (*Orchestrator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("missing base URL")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Orchestrator{
		baseURL:    baseURL,
		httpClient: httpClient,
		onState:    cfg.OnState,
	}, nil
}

// BuildRequest prepares the payload for one generation. The caller's
// parameters are never modified.
func BuildRequest(in Input) (params.Parameters, error) {
	p := in.Params.Clone()
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Prompt == "" {
		return p, ErrEmptyPrompt
	}

	p.InitImages = nil
	p.Mask = ""
	if in.Mode == params.ModeImg2Img && in.InputImage != "" {
		p.InitImages = []string{StripDataURL(in.InputImage)}
		if in.Mask != "" {
			p.Mask = StripDataURL(in.Mask)
		}
	}
	return p, nil
}

// Generate sends one request and waits for the backend's answer. A blank
// prompt fails with ErrEmptyPrompt before anything is sent.
func (o *Orchestrator) Generate(ctx context.Context, in Input) (*Result, error) {
	payload, err := BuildRequest(in)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("mode", string(payload.Mode())).
		Bool("mask", payload.HasMask()).
		Msg("Sending generation request")

	response, err := o.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		var errResp struct {
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = "Failed to generate image"
		}
		return nil, &RequestError{Status: response.StatusCode, Message: errResp.Error, Details: errResp.Details}
	}

	result := &Result{}
	if err := json.Unmarshal(respBody, result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Failed to generate image"
		}
		return nil, &RequestError{Status: response.StatusCode, Message: msg}
	}
	return result, nil
}

// Run performs one generation starting from s and returns the settled
// state. It does nothing while s is already generating.
func (o *Orchestrator) Run(ctx context.Context, s State, in Input) State {
	if s.Generating {
		return s
	}
	if strings.TrimSpace(in.Params.Prompt) == "" {
		return o.emit(Reduce(s, Failed{Failure: FailureFor(ErrEmptyPrompt)}))
	}

	s = o.emit(Reduce(s, Started{}))
	result, err := o.Generate(ctx, in)
	if err != nil {
		log.Error().Err(err).Msg("Generation failed")
		return o.emit(Reduce(s, Failed{Failure: FailureFor(err)}))
	}
	return o.emit(Reduce(s, Succeeded{ImageURL: result.ImageURL}))
}

func (o *Orchestrator) emit(s State) State {
	if o.onState != nil {
		o.onState(s)
	}
	return s
}

// Download fetches a generated image. Relative URLs are resolved against
// the backend's base URL.
func (o *Orchestrator) Download(ctx context.Context, imageURL string) ([]byte, error) {
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		imageURL = o.baseURL + "/" + strings.TrimLeft(imageURL, "/")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	response, err := o.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", imageURL, response.StatusCode)
	}
	return io.ReadAll(response.Body)
}
