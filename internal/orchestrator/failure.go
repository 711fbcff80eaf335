package orchestrator

import (
	"errors"
	"regexp"
	"strings"
)

const nanMarker = "NaN Error:"

var solutionNumbering = regexp.MustCompile(`^\d+\.\s*`)

// Failure is a generation error prepared for display. Diagnostics the
// backend sends as a numbered list are split into Title and Solutions.
type Failure struct {
	Title     string
	Solutions []string
	Message   string
}

// FormatFailure turns an error message into a Failure.
func FormatFailure(msg string) Failure {
	if !strings.Contains(msg, nanMarker) {
		return Failure{Message: msg}
	}

	lines := strings.Split(msg, "\n")
	failure := Failure{Title: lines[0], Message: msg}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		failure.Solutions = append(failure.Solutions, solutionNumbering.ReplaceAllString(line, ""))
	}
	return failure
}

// FailureFor classifies an error returned by Generate.
func FailureFor(err error) Failure {
	var reqErr *RequestError
	switch {
	case errors.Is(err, ErrEmptyPrompt):
		return Failure{Message: "Please enter a prompt"}
	case errors.As(err, &reqErr):
		return FormatFailure(reqErr.Message)
	default:
		return FormatFailure("Network error: " + err.Error())
	}
}

func (f Failure) String() string {
	if f.Title == "" {
		return "Error generating image: " + f.Message
	}

	var b strings.Builder
	b.WriteString(f.Title)
	b.WriteString("\n\nSolutions:")
	for _, s := range f.Solutions {
		b.WriteString("\n• ")
		b.WriteString(s)
	}
	return b.String()
}
