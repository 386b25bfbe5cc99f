package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/superapp-core/internal/common"
)

func TestRequestLoggerIncludesSession(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", zerolog.InfoLevel)
	h := common.RequireSession(RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(common.SessionHeader, "sess-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "sess-1", line["session_id"])
	require.Equal(t, float64(http.StatusAccepted), line["status"])
	require.Equal(t, ServiceName, line["service"])
}

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, "json", zerolog.DebugLevel)
	ctx := common.WithSessionID(context.Background(), "sess-2")
	l := LoggerFrom(ctx, base)
	l.Info().Msg("hello")
	require.Contains(t, buf.String(), `"session_id":"sess-2"`)
}
