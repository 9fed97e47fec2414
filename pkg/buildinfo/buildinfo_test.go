package buildinfo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/pkg/buildinfo"
)

// stamp sets the ldflags variables for one test.
func stamp(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := buildinfo.Version, buildinfo.Commit, buildinfo.BuildTime
	t.Cleanup(func() {
		buildinfo.Version, buildinfo.Commit, buildinfo.BuildTime = origVersion, origCommit, origBuildTime
	})
	buildinfo.Version, buildinfo.Commit, buildinfo.BuildTime = version, commit, buildTime
}

func TestGet_Unstamped(t *testing.T) {
	info := buildinfo.Get("fwdata")

	assert.Equal(t, buildinfo.Info{
		ServiceName: "fwdata",
		Version:     "dev",
		Commit:      "unknown",
		BuildTime:   "unknown",
		GoVersion:   runtime.Version(),
	}, info)
	assert.Equal(t, "dev (unknown, unknown)", buildinfo.String())
}

func TestGet_Stamped(t *testing.T) {
	stamp(t, "v0.3.0", "4e1a9c2", "2026-09-14T08:15:00Z")

	info := buildinfo.Get("fwdata")
	assert.Equal(t, "v0.3.0", info.Version)
	assert.Equal(t, "4e1a9c2", info.Commit)
	assert.Equal(t, "2026-09-14T08:15:00Z", info.BuildTime)
	assert.Equal(t, "v0.3.0 (4e1a9c2, 2026-09-14T08:15:00Z)", buildinfo.String())
}

func TestHandler_ServesStampedBuild(t *testing.T) {
	stamp(t, "v0.3.0", "4e1a9c2", "2026-09-14T08:15:00Z")

	rec := httptest.NewRecorder()
	buildinfo.Handler("fwdata")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{
		"service_name": "fwdata",
		"version":      "v0.3.0",
		"commit":       "4e1a9c2",
		"build_time":   "2026-09-14T08:15:00Z",
		"go_version":   runtime.Version(),
	}, body)
}

func TestHandler_Methods(t *testing.T) {
	tests := []struct {
		method   string
		wantCode int
		wantBody bool
	}{
		{http.MethodGet, http.StatusOK, true},
		{http.MethodHead, http.StatusOK, false},
		{http.MethodPost, http.StatusMethodNotAllowed, true},
		{http.MethodDelete, http.StatusMethodNotAllowed, true},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			buildinfo.Handler("fwdata")(rec, httptest.NewRequest(tt.method, "/version", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.Len() > 0)
			if tt.wantCode == http.StatusMethodNotAllowed {
				assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
			}
		})
	}
}
