package transporthttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"example.com/trackerimport/internal/auth"
	"example.com/trackerimport/internal/metrics"
)

// WebMessage is the envelope API errors are reported in.
type WebMessage struct {
	HTTPStatus     string `json:"httpStatus"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

func Unauthorized(message string) WebMessage {
	return WebMessage{
		HTTPStatus:     http.StatusText(http.StatusUnauthorized),
		HTTPStatusCode: http.StatusUnauthorized,
		Status:         "ERROR",
		Message:        message,
	}
}

const (
	msgAccountLocked = "Account locked"
	msgUnauthorized  = "Unauthorized"
)

// Renderer serializes a response body.
type Renderer interface {
	ToJSON(w io.Writer, v any) error
}

type jsonRenderer struct{}

func (jsonRenderer) ToJSON(w io.Writer, v any) error { return json.NewEncoder(w).Encode(v) }

// UnauthorizedEntryPoint answers requests that failed authentication. Only a
// locked account gets its own message; every other failure is reported as
// plain "Unauthorized".
type UnauthorizedEntryPoint struct {
	renderer Renderer
	logger   *zap.Logger
}

func NewUnauthorizedEntryPoint(logger *zap.Logger) *UnauthorizedEntryPoint {
	return &UnauthorizedEntryPoint{renderer: jsonRenderer{}, logger: logger}
}

// Commence writes the 401 response. Errors from writing the body are returned.
func (e *UnauthorizedEntryPoint) Commence(w http.ResponseWriter, r *http.Request, authErr error) error {
	message, reason := msgUnauthorized, "other"
	if errors.Is(authErr, auth.ErrAccountLocked) {
		message, reason = msgAccountLocked, "locked"
	}
	metrics.ObserveUnauthorized(reason)
	e.logger.Info("authentication failed",
		zap.String("path", r.URL.Path), zap.String("reason", reason), zap.Error(authErr))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	return e.renderer.ToJSON(w, Unauthorized(message))
}
