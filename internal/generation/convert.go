package generation

import (
	"github.com/cheahjs/sdwebui-panel/internal/params"
	"github.com/cheahjs/sdwebui-panel/internal/sdwebui"
)

// convertRequest maps resolved panel parameters onto the WebUI payload.
// p must already be normalized.
func convertRequest(p params.Parameters) *sdwebui.GenerateRequest {
	req := &sdwebui.GenerateRequest{
		Prompt:            p.Prompt,
		NegativePrompt:    p.NegativePrompt,
		Steps:             p.Steps,
		CFGScale:          p.CFGScale,
		Width:             p.Width,
		Height:            p.Height,
		SamplerName:       p.Sampler,
		Scheduler:         p.Scheduler,
		RestoreFaces:      p.RestoreFaces,
		Tiling:            p.Tiling,
		EnableHR:          p.EnableHR,
		HRScale:           p.HRScale,
		HRUpscaler:        p.HRUpscaler,
		HRSecondPassSteps: p.HRSecondPassSteps,
		HRResizeX:         p.HRResizeX,
		HRResizeY:         p.HRResizeY,
		DenoisingStrength: p.DenoisingStrength,

		Seed:            p.Seed,
		Subseed:         p.Subseed,
		SubseedStrength: p.SubseedStrength,
		SeedResizeFromH: p.SeedResizeFromH,
		SeedResizeFromW: p.SeedResizeFromW,
		BatchSize:       p.BatchSize,
		NIter:           p.NIter,

		Eta:    p.Eta,
		SChurn: p.SChurn,
		STmax:  p.STmax,
		STmin:  p.STmin,
		SNoise: p.SNoise,

		OverrideSettings:                  p.OverrideSettings,
		OverrideSettingsRestoreAfterwards: p.OverrideSettingsRestoreAfterwards,
		ScriptArgs:                        p.ScriptArgs,
		AlwaysonScripts:                   p.AlwaysonScripts,
	}

	if p.Mode() != params.ModeImg2Img {
		return req
	}

	req.InitImages = p.InitImages
	if p.HasMask() {
		req.Mask = p.Mask
		req.MaskBlur = intPtr(p.MaskBlur)
		req.InpaintingFill = intPtr(p.InpaintingFill)
		req.InpaintFullRes = boolPtr(p.InpaintFullRes)
		req.InpaintFullResPadding = intPtr(p.InpaintFullResPadding)
		req.InpaintingMaskInvert = intPtr(p.InpaintingMaskInvert)
	}

	return req
}

func intPtr(v int) *int {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}
