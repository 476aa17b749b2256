package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingualens/lingualens/internal/auth"
)

func TestBearerAuth(t *testing.T) {
	signer, err := auth.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	token, err := signer.Generate("popup", "gateway")
	require.NoError(t, err)

	handler := BearerAuth(signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.Subject))
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"Valid", "Bearer " + token, http.StatusOK},
		{"LowercaseScheme", "bearer " + token, http.StatusOK},
		{"Missing", "", http.StatusUnauthorized},
		{"WrongScheme", "Basic abc", http.StatusUnauthorized},
		{"BadToken", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "popup", rec.Body.String())
				return
			}

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}
