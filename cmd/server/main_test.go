package main

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/config"
	"homedash/internal/models"
	"homedash/internal/testutil"
)

// setupTestServer initializes dependencies against a fresh data directory and
// returns a test server
func setupTestServer(t *testing.T) *testutil.TestServer {
	t.Helper()
	testutil.SetTestEnv(t)

	c, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, SetupDependencies(c))

	return testutil.NewTestServer(t, SetupRouter())
}

// TestHealthEndpoint tests the /api/health endpoint
func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.GET("/api/health")
	testutil.AssertResponse(t, resp).
		StatusOK().
		ContentTypeJSON().
		Contains(`"status":"ok"`).
		Contains(`"encrypted":false`)
}

func TestVersionEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	testutil.AssertResponse(t, ts.GET("/api/version")).StatusOK().Contains(`"go_version"`)
}

// TestRootRedirect tests that / redirects to /risk
func TestRootRedirect(t *testing.T) {
	ts := setupTestServer(t)

	// Don't follow redirects
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(ts.BaseURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/risk", resp.Header.Get("Location"))
}

func TestRequestIDAndCORS(t *testing.T) {
	ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.BaseURL+"/risk", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

// TestPortfolioWorkflow edits positions and runs a simulation through the
// full middleware stack
func TestPortfolioWorkflow(t *testing.T) {
	ts := setupTestServer(t)

	testutil.AssertResponse(t, ts.PostForm("/risk/positions", url.Values{
		"ticker": {"VTI"}, "value": {"60000"}, "volatility": {"0.18"}, "drift": {"0.07"},
	})).Status(http.StatusCreated)
	testutil.AssertResponse(t, ts.PostJSON("/risk/positions", map[string]interface{}{
		"ticker": "BND", "value": 40000, "volatility": 0.05, "drift": 0.03,
	})).Status(http.StatusCreated)

	resp := ts.PostForm("/risk/simulate", url.Values{"horizon_years": {"1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		RunID  uint64                   `json:"run_id"`
		Result *models.SimulationResult `json:"result"`
	}
	testutil.DecodeJSON(t, resp, &out)
	require.NotNil(t, out.Result)
	assert.Equal(t, 100000.0, out.Result.TotalInvested)
	assert.Equal(t, 500, out.Result.Config.PathCount)
	assert.Len(t, out.Result.Buckets, 40)

	testutil.AssertResponse(t, ts.GET("/risk/chart/distribution")).StatusOK().ContentTypeJSON()

	// the saved portfolio is part of the backup
	testutil.AssertResponse(t, ts.GET("/backup")).
		StatusOK().
		ContentType("application/zip")
}

func TestSimulateValidationError(t *testing.T) {
	ts := setupTestServer(t)

	testutil.AssertResponse(t, ts.PostForm("/risk/simulate", url.Values{"path_count": {"10"}})).
		Status(http.StatusBadRequest).
		Contains(`"field":"positions"`)
}

func TestRefreshScheduleWiring(t *testing.T) {
	testutil.SetTestEnv(t)
	t.Setenv("DASH_REFRESH_SCHEDULE", "@every 1h")

	c, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, SetupDependencies(c))
	require.NotNil(t, sched)

	c.RefreshSchedule = "not a schedule"
	assert.Error(t, SetupDependencies(c))
}
