package sdwebui

import (
	"encoding/json"
	"fmt"
)

// GenerateRequest is the payload accepted by /sdapi/v1/txt2img and
// /sdapi/v1/img2img. The img2img-only fields are omitted for txt2img.
type GenerateRequest struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	Steps             int     `json:"steps"`
	CFGScale          float64 `json:"cfg_scale"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	SamplerName       string  `json:"sampler_name"`
	Scheduler         string  `json:"scheduler"`
	RestoreFaces      bool    `json:"restore_faces"`
	Tiling            bool    `json:"tiling"`
	EnableHR          bool    `json:"enable_hr"`
	HRScale           float64 `json:"hr_scale"`
	HRUpscaler        string  `json:"hr_upscaler"`
	HRSecondPassSteps int     `json:"hr_second_pass_steps"`
	HRResizeX         int     `json:"hr_resize_x"`
	HRResizeY         int     `json:"hr_resize_y"`
	DenoisingStrength float64 `json:"denoising_strength"`

	Seed            *int64  `json:"seed,omitempty"`
	Subseed         *int64  `json:"subseed,omitempty"`
	SubseedStrength float64 `json:"subseed_strength"`
	SeedResizeFromH int     `json:"seed_resize_from_h"`
	SeedResizeFromW int     `json:"seed_resize_from_w"`
	BatchSize       int     `json:"batch_size"`
	NIter           int     `json:"n_iter"`

	Eta    float64 `json:"eta"`
	SChurn float64 `json:"s_churn"`
	STmax  float64 `json:"s_tmax"`
	STmin  float64 `json:"s_tmin"`
	SNoise float64 `json:"s_noise"`

	OverrideSettings                  map[string]interface{} `json:"override_settings,omitempty"`
	OverrideSettingsRestoreAfterwards bool                   `json:"override_settings_restore_afterwards"`
	ScriptArgs                        []interface{}          `json:"script_args,omitempty"`
	AlwaysonScripts                   map[string]interface{} `json:"alwayson_scripts,omitempty"`

	InitImages            []string `json:"init_images,omitempty"`
	Mask                  string   `json:"mask,omitempty"`
	MaskBlur              *int     `json:"mask_blur,omitempty"`
	InpaintingFill        *int     `json:"inpainting_fill,omitempty"`
	InpaintFullRes        *bool    `json:"inpaint_full_res,omitempty"`
	InpaintFullResPadding *int     `json:"inpaint_full_res_padding,omitempty"`
	InpaintingMaskInvert  *int     `json:"inpainting_mask_invert,omitempty"`
}

// GenerateResponse is returned by both generation endpoints. Info is kept
// raw: the WebUI encodes it as a JSON string.
type GenerateResponse struct {
	Images     []string               `json:"images"`
	Parameters map[string]interface{} `json:"parameters"`
	Info       json.RawMessage        `json:"info"`
}

type ProgressResponse struct {
	Progress    float64 `json:"progress"`
	EtaRelative float64 `json:"eta_relative"`
}

// APIError is a non-2xx answer from the WebUI. Error is empty when the body
// did not carry the WebUI's structured error fields.
type APIError struct {
	Status int             `json:"-"`
	Err    string          `json:"error"`
	Detail string          `json:"detail"`
	Body   string          `json:"body"`
	Errors string          `json:"errors"`
	Raw    json.RawMessage `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != "" {
		return fmt.Sprintf("stable diffusion api returned status %d: %s", e.Status, e.Err)
	}
	return fmt.Sprintf("stable diffusion api returned status %d", e.Status)
}

// Structured reports whether the WebUI identified the failure itself.
func (e *APIError) Structured() bool {
	return e.Err != ""
}
