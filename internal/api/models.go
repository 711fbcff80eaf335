package api

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse reports whether the WebUI answered the liveness probe.
type HealthResponse struct {
	Status           string `json:"status"`
	SDWebUIAvailable bool   `json:"sd_webui_available"`
	Timestamp        string `json:"timestamp"`
}
