package errutil_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
)

func TestHandle(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		gt.NoError(t, errutil.Handle(context.Background(), nil, "nothing"))
	})

	t.Run("returns the given error", func(t *testing.T) {
		err := goerr.New("boom", goerr.V("key", "value"))
		gt.Value(t, errutil.Handle(context.Background(), err, "failed")).Equal(error(err))
	})
}

func TestHandleHTTP(t *testing.T) {
	t.Run("writes JSON error body with status", func(t *testing.T) {
		w := httptest.NewRecorder()
		errutil.HandleHTTP(context.Background(), w, goerr.New("bad input"), http.StatusBadRequest)

		gt.Number(t, w.Code).Equal(http.StatusBadRequest)
		gt.String(t, w.Header().Get("Content-Type")).Equal("application/json")

		var body map[string]string
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
		gt.String(t, body["error"]).Equal("bad input")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		errutil.HandleHTTP(context.Background(), w, nil, http.StatusInternalServerError)
		gt.Number(t, w.Body.Len()).Equal(0)
	})
}
