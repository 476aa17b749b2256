package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode(CodeRateLimited))
	assert.Equal(t, StatusClientClosedRequest, HTTPStatusFromCode(CodeCanceled))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromCode(CodeTimeout))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromCode(CodeExternalService))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode(CodeDatabase))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_NEW"))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestRespondWithRateLimited(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	req = req.WithContext(middleware.WithRequestID(req.Context(), "req-7"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewRateLimitedError("analyze quota exhausted", 7, 0, 30))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-7", body.Error.RequestID)
	assert.EqualValues(t, 7, body.Error.Details["retry_after"])
	assert.EqualValues(t, 30, body.Error.Details["limit"])
}

func TestRespondWithPlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil), stderrors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.Equal(t, "boom", body.Error.Details["wrapped_error"])
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestWrapUsesRequestID(t *testing.T) {
	ctx := middleware.WithRequestID(context.Background(), "req-9")
	envelope := WrapTimeout(ctx, context.DeadlineExceeded, "upstream timed out")

	assert.Equal(t, CodeTimeout, envelope.Code)
	assert.Equal(t, "req-9", envelope.CorrelationID)
	assert.Equal(t, context.DeadlineExceeded.Error(), envelope.Context["wrapped_error"])
}

func TestResponseDetailsPrefersDetails(t *testing.T) {
	envelope := NewRateLimitedError("denied", 3, 0, 10)
	envelope, err := envelope.WithContext(map[string]interface{}{"limit": "ignored", "policy": "translate"})
	require.NoError(t, err)

	details := ResponseDetails(envelope)
	assert.Equal(t, 10, details["limit"])
	assert.Equal(t, "translate", details["policy"])
	assert.Nil(t, ResponseDetails(NewNotFoundError("missing")))
}
