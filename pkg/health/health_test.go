package health

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rewards-controlplane/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func TestReadinessWithDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	h := ProvideHealth(HealthParams{DB: db})

	res := h.Check(context.Background())
	require.Equal(t, statusHealthy, res.Status)
	require.Len(t, res.Deps, 1)

	r := gin.New()
	r.GET("/readyz", h.Readiness)
	r.GET("/healthz", h.Liveness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "sqlite", body.Deps[0].Name)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessFailsOnClosedDatabase(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res := ProvideHealth(HealthParams{DB: db}).Check(context.Background())
	require.Equal(t, statusUnhealthy, res.Status)
}

func TestGRPCHealthCheck(t *testing.T) {
	db := testutil.NewTestDB(t)
	srv := NewGRPCHealth(ProvideHealth(HealthParams{DB: db}))

	res, err := srv.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, res.Status)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res, err = srv.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, res.Status)
}

func TestOptionalProbeDegrades(t *testing.T) {
	db := testutil.NewTestDB(t)
	h := ProvideHealth(HealthParams{DB: db}).(*health)
	h.probes = append(h.probes, probe{name: "redis", ping: func(context.Context) error {
		return errors.New("connection refused")
	}})

	res := h.Check(context.Background())
	require.Equal(t, statusDegraded, res.Status)
	require.Len(t, res.Deps, 2)
	require.Equal(t, "redis", res.Deps[1].Name)
	require.False(t, res.Deps[1].Critical)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/readyz", h.Readiness)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
