package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

func TestOpsAPIKey(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("ops-secret-key"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name           string
		hash           string
		key            string
		expectedStatus int
	}{
		{
			name:           "empty hash disables the guard",
			hash:           "",
			key:            "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid key passes",
			hash:           string(hash),
			key:            "ops-secret-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong key rejected",
			hash:           string(hash),
			key:            "not-the-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing key rejected",
			hash:           string(hash),
			key:            "",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := OpsAPIKey(tt.hash, observability.NopLogger())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				}),
			)

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.key != "" {
				req.Header.Set(HeaderAPIKey, tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusUnauthorized {
				assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
				assert.JSONEq(t, ErrInvalidAPIKey, rec.Body.String())
			}
		})
	}
}
