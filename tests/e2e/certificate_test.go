//go:build e2e

package e2e

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	resp, body := httpGet(t, baseURL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode, "health: %s", body)
	health := parseJSON(t, body)
	require.Equal(t, "healthy", health["status"])
	deps, _ := health["dependencies"].(map[string]interface{})
	require.Contains(t, deps, "storage")
	require.Contains(t, deps, "cache")
}

func TestGenerateCertificateLifecycle(t *testing.T) {
	id := uniqueID("E2E-CERT")

	resp, body := httpPost(t, apiURL+"/certificates/generate", map[string]interface{}{
		"certificate_id":   id,
		"certificate_type": "collection",
		"title":            "Go Concurrency Track",
		"user_name":        "E2E Learner",
		"user_email":       "learner@example.com",
		"items_completed":  []string{"Goroutines", "Channels", "Select"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "generate: %s", body)
	rec := parseJSON(t, body)
	require.Equal(t, "COMPLETED", rec["status"])
	t.Logf("generated %s at %s", id, rec["storage_ref"])

	// Generating again is idempotent.
	resp, body = httpPost(t, apiURL+"/certificates/generate", map[string]interface{}{
		"certificate_id":   id,
		"certificate_type": "collection",
		"title":            "Go Concurrency Track",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "regenerate: %s", body)
	require.Equal(t, rec["storage_ref"], parseJSON(t, body)["storage_ref"])

	resp, body = httpGet(t, apiURL+"/certificates/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode, "status: %s", body)
	require.NotEmpty(t, parseJSON(t, body)["download_url"])

	resp, body = httpGet(t, apiURL+"/certificates/"+id+"/verify")
	require.Equal(t, http.StatusOK, resp.StatusCode, "verify: %s", body)
	v := parseJSON(t, body)
	require.Equal(t, "E2E Learner", v["user_name"])
	require.Len(t, v["items_completed"], 3)

	resp, body = httpGet(t, apiURL+"/certificates/"+id+"/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(body, "%PDF-"), "download is not a PDF")
}

func TestGenerateValidationError(t *testing.T) {
	resp, body := httpPost(t, apiURL+"/certificates/generate", map[string]interface{}{
		"certificate_type": "diploma",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	require.Equal(t, "validation", parseJSON(t, body)["kind"])
}

func TestUnknownCertificate(t *testing.T) {
	resp, body := httpGet(t, apiURL+"/certificates/"+uniqueID("E2E-MISSING"))
	require.Equal(t, http.StatusNotFound, resp.StatusCode, body)
}
