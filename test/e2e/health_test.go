//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// do sends a request to the shared test server and returns the response,
// closed when the test ends
func do(t *testing.T, method, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, testCtx.TestServer.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth_Endpoints(t *testing.T) {
	for _, path := range []string{"/health", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			resp := do(t, http.MethodGet, path, nil)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "ok", body["status"])
		})
	}
}

func TestHistoryAPI_Cors(t *testing.T) {
	t.Run("preflight", func(t *testing.T) {
		resp := do(t, http.MethodOptions, "/api/v1/deployments", http.Header{
			"Origin":                        {"https://explorer.example.com"},
			"Access-Control-Request-Method": {"GET"},
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "GET")
	})

	t.Run("list response", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/api/v1/deployments?network=e2e-cors-none", http.Header{
			"Origin": {"https://explorer.example.com"},
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		var body struct {
			Data []json.RawMessage `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotNil(t, body.Data, "empty listings are [] rather than null")
		assert.Empty(t, body.Data)
	})
}

func TestHistoryAPI_ReadOnly(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			resp := do(t, method, "/api/v1/deployments", nil)
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestNotFoundPaths(t *testing.T) {
	paths := []string{
		"/api/v1/nonexistent",
		"/api/v1/packages",
		"/api/v1/deployments/1/0x0000000000000000000000000000000000000001",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			resp := do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}
