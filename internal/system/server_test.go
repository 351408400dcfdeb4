package system

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/analysis"
	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	"github.com/yohannes916/mismartera-sub001/internal/config"
	"github.com/yohannes916/mismartera-sub001/internal/coordinator"
	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/provisioning"
	"github.com/yohannes916/mismartera-sub001/internal/quality"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
)

func newTestManager(t *testing.T) *SystemManager {
	t.Helper()
	store := sessiondata.New()
	repo := barrepo.NewMemoryRepository()
	cal, err := calendar.NewNYSEService()
	require.NoError(t, err, "calendar")
	catalog := indicatorcatalog.New()

	proc, err := processor.New(store, catalog, processor.Config{BaseInterval: "1m"}, stream.ModeLive)
	require.NoError(t, err, "processor.New")
	qm := quality.New(store, repo, cal, "NYSE", models.GapFillerConfig{}, nil)
	strategies := analysis.NewStrategyManager(store, stream.ModeLive, 2*time.Second)
	scanners := analysis.NewScannerManager()
	engine := analysis.New(strategies, scanners, stream.ModeLive)
	proc.SetAnalysisSubscription(engine.Subscription())
	prov := provisioning.New(store, repo, cal, catalog, provisioning.Config{BaseInterval: "1m", Exchange: "NYSE"}, nil)

	coord := coordinator.New(coordinator.Deps{
		Store: store, Repo: repo, Calendar: cal,
		Processor: proc, Quality: qm, Engine: engine, Provisioner: prov,
	})

	return New(coord, repo, config.SystemConfig{Port: 0, JWTSecret: ""})
}

func TestHealthAndLiveEndpointsRespondWithoutAuth(t *testing.T) {
	m := newTestManager(t)
	router := m.Router()

	for _, path := range []string{"/health", "/live"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, 200, rec.Code, "%s: %s", path, rec.Body.String())
	}
}

func TestReadyReflectsCoordinatorState(t *testing.T) {
	m := newTestManager(t)
	router := m.Router()

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 503, rec.Code, "expected 503 before session start")
}

func TestStateEndpointRequiresAuthWhenSecretConfigured(t *testing.T) {
	m := newTestManager(t)
	m.auth = NewAuthManager("a-real-secret")
	router := m.Router()

	req := httptest.NewRequest("GET", "/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code, "expected 401 without a bearer token")
}

func TestStateEndpointReturnsProtobufJSON(t *testing.T) {
	m := newTestManager(t)
	router := m.Router()

	req := httptest.NewRequest("GET", "/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
