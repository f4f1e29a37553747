package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordOperation("validate_creative", nil)
	m.RecordOperation("validate_creative", errors.New("boom"))
	m.RecordOperation("validate_creative", nil)
	m.RecordValidationError("missing_required_asset")
	m.RecordPreviews(3)
	m.RecordUpload(nil)
	m.RecordGeneration(errors.New("no key"))
	m.RecordRequest("/api/formats", http.StatusOK, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("validate_creative", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("validate_creative", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationErrors.WithLabelValues("missing_required_asset")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.previews))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/formats", "200")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("x", nil)
		m.RecordPreviews(1)
		m.RecordRequest("/", 200, time.Second)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordPreviews(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "creative_agent_previews_rendered_total 2")
	assert.Contains(t, string(body), "go_goroutines")
}
