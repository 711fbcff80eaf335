package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cheahjs/sdwebui-panel/internal/form"
	"github.com/cheahjs/sdwebui-panel/internal/orchestrator"
	"github.com/cheahjs/sdwebui-panel/internal/params"
)

type generateOptions struct {
	server    string
	initImage string
	mask      string
	output    string
	prompt    string
	negative  string
	sampler   string
	scheduler string
	steps     int64
	width     int64
	height    int64
	seed      int64
	cfgScale  float64
	denoising float64
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an image through a running panel backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	bindGenerateFlags(cmd.Flags(), opts)
	return cmd
}

func bindGenerateFlags(flags *pflag.FlagSet, opts *generateOptions) {
	flags.StringVar(&opts.server, "server", "", "panel backend URL (default http://localhost:$PORT)")
	flags.StringVar(&opts.initImage, "init-image", "", "source image for img2img")
	flags.StringVar(&opts.mask, "mask", "", "inpainting mask, used with --init-image")
	flags.StringVarP(&opts.output, "output", "o", "", "write the generated image to this file")
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "prompt")
	flags.StringVar(&opts.negative, "negative-prompt", "", "negative prompt")
	flags.StringVar(&opts.sampler, "sampler", params.DefaultSampler, "sampler name")
	flags.StringVar(&opts.scheduler, "scheduler", params.DefaultScheduler, "scheduler name")
	flags.Int64Var(&opts.steps, "steps", params.DefaultSteps, "sampling steps")
	flags.Int64Var(&opts.width, "width", params.DefaultWidth, "image width")
	flags.Int64Var(&opts.height, "height", params.DefaultHeight, "image height")
	flags.Int64Var(&opts.seed, "seed", -1, "seed, -1 for random")
	flags.Float64Var(&opts.cfgScale, "cfg-scale", params.DefaultCFGScale, "CFG scale")
	flags.Float64Var(&opts.denoising, "denoising-strength", params.DefaultDenoisingStrength, "img2img denoising strength")
}

// buildForm applies the flags the user set on top of the form defaults, so
// every value goes through the same bounds as the panel's controls.
func buildForm(flags *pflag.FlagSet, opts *generateOptions) (form.Form, error) {
	f, err := form.New().SetString("prompt", opts.prompt)
	if err != nil {
		return f, err
	}

	type setter func(form.Form) (form.Form, error)
	setters := map[string]setter{
		"negative-prompt":    func(f form.Form) (form.Form, error) { return f.SetString("negative_prompt", opts.negative) },
		"sampler":            func(f form.Form) (form.Form, error) { return f.SetString("sampler", opts.sampler) },
		"scheduler":          func(f form.Form) (form.Form, error) { return f.SetString("scheduler", opts.scheduler) },
		"steps":              func(f form.Form) (form.Form, error) { return f.SetInt("steps", opts.steps) },
		"width":              func(f form.Form) (form.Form, error) { return f.SetInt("width", opts.width) },
		"height":             func(f form.Form) (form.Form, error) { return f.SetInt("height", opts.height) },
		"seed":               func(f form.Form) (form.Form, error) { return f.SetInt("seed", opts.seed) },
		"cfg-scale":          func(f form.Form) (form.Form, error) { return f.SetFloat("cfg_scale", opts.cfgScale) },
		"denoising-strength": func(f form.Form) (form.Form, error) { return f.SetFloat("denoising_strength", opts.denoising) },
	}
	for name, set := range setters {
		if !flags.Changed(name) {
			continue
		}
		if f, err = set(f); err != nil {
			return f, fmt.Errorf("--%s: %w", name, err)
		}
	}
	return f, nil
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	f, err := buildForm(cmd.Flags(), opts)
	if err != nil {
		return err
	}

	in := orchestrator.Input{Params: f.Parameters(), Mode: params.ModeTxt2Img}
	if opts.initImage != "" {
		in.Mode = params.ModeImg2Img
		if in.InputImage, err = orchestrator.LoadImageFile(opts.initImage); err != nil {
			return err
		}
		if opts.mask != "" {
			if in.Mask, err = orchestrator.LoadImageFile(opts.mask); err != nil {
				return err
			}
		}
	} else if opts.mask != "" {
		return errors.New("--mask requires --init-image")
	}

	server := opts.server
	if server == "" {
		server = "http://localhost:" + cfg.Port
	}
	o, err := orchestrator.New(orchestrator.Config{
		BaseURL: server,
		OnState: func(s orchestrator.State) {
			if s.Generating {
				log.Info().Str("server", server).Str("mode", string(in.Mode)).Msg("Generating")
			}
		},
	})
	if err != nil {
		return err
	}

	state := o.Run(cmd.Context(), orchestrator.State{}, in)
	if state.Failure != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), state.Failure.String())
		return errors.New("generation failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), state.ImageURL)
	if opts.output == "" {
		return nil
	}
	data, err := o.Download(cmd.Context(), state.ImageURL)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.output, err)
	}
	log.Info().Str("file", opts.output).Msg("Image saved")
	return nil
}
