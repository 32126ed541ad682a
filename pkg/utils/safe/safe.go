package safe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// ErrPanic marks an error converted from a recovered panic
var ErrPanic = goerr.New("panic recovered")

// Close closes closer and logs a failure. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}

// WriteJSON encodes v as the response body. Encoding failures can only be
// logged because the status line is already sent.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(ctx).Error("Failed to write response", slog.Any("error", err))
	}
}

// Call runs fn and converts a panic into an error wrapping ErrPanic.
func Call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = goerr.Wrap(ErrPanic, e.Error(), goerr.V("panic", r))
				return
			}
			err = goerr.Wrap(ErrPanic, "panic in call", goerr.V("panic", r))
		}
	}()
	return fn()
}
