package generation

import (
	"errors"
	"fmt"

	"github.com/cheahjs/sdwebui-panel/internal/sdwebui"
)

var (
	ErrServiceUnavailable = errors.New("Stable Diffusion WebUI is not running. Please start it first.")
	ErrNoImage            = errors.New("No image generated by Stable Diffusion WebUI")
)

// nansException is the WebUI's error code for a NaN tensor.
const nansException = "NansException"

const nanRemediation = "NaN Error: This is usually caused by GPU precision issues. Try these solutions:\n" +
	"1. In Stable Diffusion WebUI Settings, enable 'Upcast cross attention layer to float32'\n" +
	"2. Restart WebUI with --no-half command line argument\n" +
	"3. Try a different model or reduce image resolution\n" +
	"4. Use --disable-nan-check to bypass this check (not recommended)"

// Error is a failed generation. Message is safe to show to the caller,
// Details carries the raw upstream body when there was one.
type Error struct {
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// translateError turns an upstream failure into the message surfaced to
// the panel.
func translateError(err error) *Error {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}

	var apiErr *sdwebui.APIError
	if errors.As(err, &apiErr) {
		var details interface{} = apiErr.Error()
		if len(apiErr.Raw) > 0 {
			details = apiErr.Raw
		}
		switch {
		case apiErr.Err == nansException:
			return &Error{Message: nanRemediation, Details: details, Err: err}
		case apiErr.Structured():
			return &Error{Message: fmt.Sprintf("Stable Diffusion WebUI Error: %s", apiErr.Err), Details: details, Err: err}
		}
	}

	return &Error{Message: err.Error(), Details: err.Error(), Err: err}
}
