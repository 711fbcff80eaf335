package params

import (
	"errors"
	"math"
	"strings"
)

const (
	DefaultSteps             = 35
	DefaultCFGScale          = 4.0
	DefaultSampler           = "DPM++ 2M"
	DefaultScheduler         = "BETA"
	DefaultWidth             = 512
	DefaultHeight            = 512
	DefaultBatchSize         = 1
	DefaultNIter             = 1
	DefaultHRScale           = 1.0
	DefaultHRUpscaler        = "Latent"
	DefaultDenoisingStrength = 0.4
	DefaultMaskBlur          = 4

	DefaultNegativePrompt = "lowres, bad anatomy, bad hands, text, error, missing fingers, extra digit, fewer digits, cropped, worst quality, low quality, normal quality, jpeg artifacts, signature, watermark, username, blurry"
)

var ErrPromptRequired = errors.New("Prompt is required")

// Mode is the upstream operation a request resolves to.
type Mode string

const (
	ModeTxt2Img Mode = "txt2img"
	ModeImg2Img Mode = "img2img"
)

// Parameters is the generation request accepted by the panel backend. Zero
// values mean "not supplied" except for Seed and Subseed, where 0 is a
// valid seed and nil is the unset marker.
type Parameters struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`

	Steps     int     `json:"steps,omitempty"`
	CFGScale  float64 `json:"cfg_scale,omitempty"`
	Sampler   string  `json:"sampler,omitempty"`
	Scheduler string  `json:"scheduler,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`

	Seed            *int64  `json:"seed,omitempty"`
	Subseed         *int64  `json:"subseed,omitempty"`
	SubseedStrength float64 `json:"subseed_strength,omitempty"`
	SeedResizeFromH int     `json:"seed_resize_from_h,omitempty"`
	SeedResizeFromW int     `json:"seed_resize_from_w,omitempty"`

	BatchSize int `json:"batch_size,omitempty"`
	NIter     int `json:"n_iter,omitempty"`

	RestoreFaces bool `json:"restore_faces,omitempty"`
	Tiling       bool `json:"tiling,omitempty"`

	EnableHR          bool    `json:"enable_hr,omitempty"`
	HRScale           float64 `json:"hr_scale,omitempty"`
	HRUpscaler        string  `json:"hr_upscaler,omitempty"`
	HRSecondPassSteps int     `json:"hr_second_pass_steps,omitempty"`
	HRResizeX         int     `json:"hr_resize_x,omitempty"`
	HRResizeY         int     `json:"hr_resize_y,omitempty"`
	DenoisingStrength float64 `json:"denoising_strength,omitempty"`

	Eta    float64 `json:"eta,omitempty"`
	SChurn float64 `json:"s_churn,omitempty"`
	STmax  float64 `json:"s_tmax,omitempty"`
	STmin  float64 `json:"s_tmin,omitempty"`
	SNoise float64 `json:"s_noise,omitempty"`

	OverrideSettings                  map[string]interface{} `json:"override_settings,omitempty"`
	OverrideSettingsRestoreAfterwards bool                   `json:"override_settings_restore_afterwards,omitempty"`
	ScriptArgs                        []interface{}          `json:"script_args,omitempty"`
	AlwaysonScripts                   map[string]interface{} `json:"alwayson_scripts,omitempty"`

	InitImages            []string `json:"init_images,omitempty"`
	Mask                  string   `json:"mask,omitempty"`
	MaskBlur              int      `json:"mask_blur,omitempty"`
	InpaintingFill        int      `json:"inpainting_fill,omitempty"`
	InpaintFullRes        bool     `json:"inpaint_full_res,omitempty"`
	InpaintFullResPadding int      `json:"inpaint_full_res_padding,omitempty"`
	InpaintingMaskInvert  int      `json:"inpainting_mask_invert,omitempty"`
}

// Normalize trims the prompt and resolves every optional field to its
// declared default. Derived high-res fix values are computed from the
// already resolved steps, width, height and hr_scale.
func (p Parameters) Normalize() (Parameters, error) {
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Prompt == "" {
		return p, ErrPromptRequired
	}

	if p.NegativePrompt == "" {
		p.NegativePrompt = DefaultNegativePrompt
	}
	p.Steps = orInt(p.Steps, DefaultSteps)
	p.CFGScale = orFloat(p.CFGScale, DefaultCFGScale)
	p.Sampler = orString(p.Sampler, DefaultSampler)
	p.Scheduler = orString(p.Scheduler, DefaultScheduler)
	p.Width = orInt(p.Width, DefaultWidth)
	p.Height = orInt(p.Height, DefaultHeight)
	p.BatchSize = orInt(p.BatchSize, DefaultBatchSize)
	p.NIter = orInt(p.NIter, DefaultNIter)

	p.HRScale = orFloat(p.HRScale, DefaultHRScale)
	p.HRUpscaler = orString(p.HRUpscaler, DefaultHRUpscaler)
	p.HRSecondPassSteps = orInt(p.HRSecondPassSteps, int(math.Floor(float64(p.Steps)*0.5)))
	p.HRResizeX = orInt(p.HRResizeX, int(math.Floor(float64(p.Width)*p.HRScale)))
	p.HRResizeY = orInt(p.HRResizeY, int(math.Floor(float64(p.Height)*p.HRScale)))
	p.DenoisingStrength = orFloat(p.DenoisingStrength, DefaultDenoisingStrength)

	p.MaskBlur = orInt(p.MaskBlur, DefaultMaskBlur)

	return p, nil
}

// Mode reports img2img when at least one init image is present.
func (p Parameters) Mode() Mode {
	if len(p.InitImages) > 0 {
		return ModeImg2Img
	}
	return ModeTxt2Img
}

func (p Parameters) HasMask() bool {
	return p.Mask != ""
}

// Clone returns a copy that shares no slices or maps with p.
func (p Parameters) Clone() Parameters {
	c := p
	if p.Seed != nil {
		seed := *p.Seed
		c.Seed = &seed
	}
	if p.Subseed != nil {
		subseed := *p.Subseed
		c.Subseed = &subseed
	}
	if p.InitImages != nil {
		c.InitImages = append([]string(nil), p.InitImages...)
	}
	if p.ScriptArgs != nil {
		c.ScriptArgs = append([]interface{}(nil), p.ScriptArgs...)
	}
	c.OverrideSettings = cloneMap(p.OverrideSettings)
	c.AlwaysonScripts = cloneMap(p.AlwaysonScripts)
	return c
}

// WithoutImages drops the base64 payloads so the record can be echoed or
// logged without carrying megabytes of image data.
func (p Parameters) WithoutImages() Parameters {
	p.InitImages = nil
	p.Mask = ""
	return p
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func orFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
