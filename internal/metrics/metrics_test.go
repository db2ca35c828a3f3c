package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytdl-web/internal/jobs"
)

func TestCollectorTracksJobs(t *testing.T) {
	c := New()

	c.JobChanged(jobs.Record{ID: "a", Status: jobs.StatusStarting})
	c.JobChanged(jobs.Record{ID: "b", Status: jobs.StatusStarting})
	c.JobChanged(jobs.Record{ID: "a", Status: jobs.StatusDownloading, Progress: 30})
	c.JobChanged(jobs.Record{ID: "a", Status: jobs.StatusFinished, Progress: 100})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inProgress))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed.WithLabelValues("finished")))

	c.JobChanged(jobs.Record{ID: "b", Status: jobs.StatusError, Error: "x"})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inProgress))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed.WithLabelValues("error")))
}

func TestCollectorObservesProbes(t *testing.T) {
	c := New()
	c.ObserveProbe(true, 200*time.Millisecond)
	c.ObserveProbe(false, time.Second)
	c.ObserveProbe(false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.probes.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.probes.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.JobChanged(jobs.Record{ID: "a", Status: jobs.StatusStarting})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "ytdl_web_jobs_submitted_total 1")
	assert.Contains(t, string(body), "ytdl_web_jobs_in_progress 1")
}
