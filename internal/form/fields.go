package form

import (
	"github.com/cheahjs/sdwebui-panel/internal/params"
)

type Kind int

const (
	KindInt Kind = iota
	KindSeed
	KindFloat
	KindBool
	KindText
	KindChoice
	KindIntChoice
)

// Section groups fields for display only.
type Section string

const (
	SectionBasic      Section = "basic"
	SectionHighRes    Section = "hires"
	SectionAdvanced   Section = "advanced"
	SectionInpainting Section = "inpainting"
)

type IntChoice struct {
	Value int
	Label string
}

// Field describes one editable parameter: its bounds or option set and
// its default.
type Field struct {
	Name    string
	Label   string
	Section Section
	Kind    Kind

	Min  float64
	Max  float64
	Step float64

	Choices    []string
	IntChoices []IntChoice

	Default interface{}

	intRef    func(*params.Parameters) *int
	seedRef   func(*params.Parameters) **int64
	floatRef  func(*params.Parameters) *float64
	boolRef   func(*params.Parameters) *bool
	stringRef func(*params.Parameters) *string
}

var Samplers = []string{
	"DPM++ 2M SDE",
	"DPM++ 3M SDE",
	"Euler",
	"Euler a",
	"LMS",
	"Heun",
	"DPM2",
	"DPM2 a",
	"DPM++ 2S a",
	"DPM++ 2M",
	"DPM++ SDE",
	"DPM fast",
	"DPM adaptive",
	"LMS Karras",
	"DPM2 Karras",
	"DPM2 a Karras",
	"DPM++ 2S a Karras",
	"DPM++ 2M Karras",
	"DPM++ SDE Karras",
	"DDIM",
	"PLMS",
}

var Schedulers = []string{
	"BETA",
	"Exponential",
	"Karras",
	"Linear",
	"Cosine",
	"Cosine with restart",
	"Polynomial",
	"Constant",
	"Constant with restart",
}

var InpaintingFillModes = []IntChoice{
	{Value: 0, Label: "fill"},
	{Value: 1, Label: "original"},
	{Value: 2, Label: "latent noise"},
	{Value: 3, Label: "latent nothing"},
}

var MaskInvertModes = []IntChoice{
	{Value: 0, Label: "Inpaint masked"},
	{Value: 1, Label: "Inpaint not masked"},
}

const maxSeed = 4294967295

var fields = []Field{
	textField("prompt", "Prompt", SectionBasic, "", func(p *params.Parameters) *string { return &p.Prompt }),
	textField("negative_prompt", "Negative prompt", SectionBasic, "", func(p *params.Parameters) *string { return &p.NegativePrompt }),
	intField("steps", "Steps", SectionBasic, 1, 150, 1, params.DefaultSteps, func(p *params.Parameters) *int { return &p.Steps }),
	floatField("cfg_scale", "CFG Scale", SectionBasic, 1, 30, 0.5, params.DefaultCFGScale, func(p *params.Parameters) *float64 { return &p.CFGScale }),
	choiceField("sampler", "Sampler", SectionBasic, Samplers, params.DefaultSampler, func(p *params.Parameters) *string { return &p.Sampler }),
	choiceField("scheduler", "Scheduler", SectionBasic, Schedulers, params.DefaultScheduler, func(p *params.Parameters) *string { return &p.Scheduler }),
	intField("width", "Width", SectionBasic, 64, 2048, 64, params.DefaultWidth, func(p *params.Parameters) *int { return &p.Width }),
	intField("height", "Height", SectionBasic, 64, 2048, 64, params.DefaultHeight, func(p *params.Parameters) *int { return &p.Height }),
	seedField("seed", "Seed", SectionBasic, func(p *params.Parameters) **int64 { return &p.Seed }),
	intField("batch_size", "Batch size", SectionBasic, 1, 8, 1, params.DefaultBatchSize, func(p *params.Parameters) *int { return &p.BatchSize }),
	intField("n_iter", "Batch count", SectionBasic, 1, 100, 1, params.DefaultNIter, func(p *params.Parameters) *int { return &p.NIter }),

	boolField("enable_hr", "Hires. fix", SectionHighRes, false, func(p *params.Parameters) *bool { return &p.EnableHR }),
	floatField("hr_scale", "Upscale by", SectionHighRes, 1, 4, 0.05, params.DefaultHRScale, func(p *params.Parameters) *float64 { return &p.HRScale }),
	textField("hr_upscaler", "Upscaler", SectionHighRes, params.DefaultHRUpscaler, func(p *params.Parameters) *string { return &p.HRUpscaler }),
	intField("hr_second_pass_steps", "Hires steps", SectionHighRes, 0, 150, 1, 0, func(p *params.Parameters) *int { return &p.HRSecondPassSteps }),
	intField("hr_resize_x", "Resize width to", SectionHighRes, 0, 4096, 8, 0, func(p *params.Parameters) *int { return &p.HRResizeX }),
	intField("hr_resize_y", "Resize height to", SectionHighRes, 0, 4096, 8, 0, func(p *params.Parameters) *int { return &p.HRResizeY }),
	floatField("denoising_strength", "Denoising strength", SectionHighRes, 0, 1, 0.01, params.DefaultDenoisingStrength, func(p *params.Parameters) *float64 { return &p.DenoisingStrength }),

	seedField("subseed", "Variation seed", SectionAdvanced, func(p *params.Parameters) **int64 { return &p.Subseed }),
	floatField("subseed_strength", "Variation strength", SectionAdvanced, 0, 1, 0.01, 0, func(p *params.Parameters) *float64 { return &p.SubseedStrength }),
	intField("seed_resize_from_h", "Resize seed from height", SectionAdvanced, 0, 2048, 8, 0, func(p *params.Parameters) *int { return &p.SeedResizeFromH }),
	intField("seed_resize_from_w", "Resize seed from width", SectionAdvanced, 0, 2048, 8, 0, func(p *params.Parameters) *int { return &p.SeedResizeFromW }),
	boolField("restore_faces", "Restore faces", SectionAdvanced, false, func(p *params.Parameters) *bool { return &p.RestoreFaces }),
	boolField("tiling", "Tiling", SectionAdvanced, false, func(p *params.Parameters) *bool { return &p.Tiling }),
	floatField("eta", "Eta", SectionAdvanced, 0, 1, 0.01, 0, func(p *params.Parameters) *float64 { return &p.Eta }),
	floatField("s_churn", "Sigma churn", SectionAdvanced, 0, 100, 0.01, 0, func(p *params.Parameters) *float64 { return &p.SChurn }),
	floatField("s_tmin", "Sigma tmin", SectionAdvanced, 0, 10, 0.01, 0, func(p *params.Parameters) *float64 { return &p.STmin }),
	floatField("s_tmax", "Sigma tmax", SectionAdvanced, 0, 999, 0.01, 0, func(p *params.Parameters) *float64 { return &p.STmax }),
	floatField("s_noise", "Sigma noise", SectionAdvanced, 0, 1.1, 0.001, 0, func(p *params.Parameters) *float64 { return &p.SNoise }),
	boolField("override_settings_restore_afterwards", "Restore settings afterwards", SectionAdvanced, false, func(p *params.Parameters) *bool { return &p.OverrideSettingsRestoreAfterwards }),

	intField("mask_blur", "Mask blur", SectionInpainting, 0, 64, 1, params.DefaultMaskBlur, func(p *params.Parameters) *int { return &p.MaskBlur }),
	intChoiceField("inpainting_fill", "Masked content", SectionInpainting, InpaintingFillModes, 0, func(p *params.Parameters) *int { return &p.InpaintingFill }),
	boolField("inpaint_full_res", "Inpaint area: only masked", SectionInpainting, false, func(p *params.Parameters) *bool { return &p.InpaintFullRes }),
	intField("inpaint_full_res_padding", "Only masked padding", SectionInpainting, 0, 256, 4, 0, func(p *params.Parameters) *int { return &p.InpaintFullResPadding }),
	intChoiceField("inpainting_mask_invert", "Mask mode", SectionInpainting, MaskInvertModes, 0, func(p *params.Parameters) *int { return &p.InpaintingMaskInvert }),
}

var fieldsByName = func() map[string]*Field {
	m := make(map[string]*Field, len(fields))
	for i := range fields {
		m[fields[i].Name] = &fields[i]
	}
	return m
}()

func intField(name, label string, section Section, min, max, step float64, def int, ref func(*params.Parameters) *int) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindInt, Min: min, Max: max, Step: step, Default: def, intRef: ref}
}

func seedField(name, label string, section Section, ref func(*params.Parameters) **int64) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindSeed, Min: -1, Max: maxSeed, Step: 1, seedRef: ref}
}

func floatField(name, label string, section Section, min, max, step, def float64, ref func(*params.Parameters) *float64) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindFloat, Min: min, Max: max, Step: step, Default: def, floatRef: ref}
}

func boolField(name, label string, section Section, def bool, ref func(*params.Parameters) *bool) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindBool, Default: def, boolRef: ref}
}

func textField(name, label string, section Section, def string, ref func(*params.Parameters) *string) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindText, Default: def, stringRef: ref}
}

func choiceField(name, label string, section Section, choices []string, def string, ref func(*params.Parameters) *string) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindChoice, Choices: choices, Default: def, stringRef: ref}
}

func intChoiceField(name, label string, section Section, choices []IntChoice, def int, ref func(*params.Parameters) *int) Field {
	return Field{Name: name, Label: label, Section: section, Kind: KindIntChoice, IntChoices: choices, Default: def, intRef: ref}
}
