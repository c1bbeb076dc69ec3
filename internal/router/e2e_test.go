//go:build integration

package router_test

// End-to-end tests against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roastkit/internal/config"
	"roastkit/internal/infra"
	"roastkit/internal/model"
	"roastkit/internal/repository"
	"roastkit/internal/router"
	"roastkit/internal/service"
	"roastkit/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type e2eEnv struct {
	server  *httptest.Server
	db      *gorm.DB
	rdb     *redis.Client
	cfg     *config.Config
	admin   string
	roaster string
}

func setupE2E(t *testing.T) *e2eEnv {
	t.Helper()
	ctx := context.Background()
	service.BcryptCost = bcrypt.MinCost

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("roastkit_test"),
		tcPostgres.WithUsername("roastkit"),
		tcPostgres.WithPassword("roastkit"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:               4000,
		Env:                "test",
		WorkerPoolSize:     1,
		DatabaseURL:        pgURL,
		RedisURL:           rdURL,
		JWTSecret:          "e2e-secret",
		JWTExpirationHours: 8,
		ReportStoragePath:  t.TempDir(),
		LowStockGrams:      5000,
	}

	require.NoError(t, infra.RunMigrations(cfg.DatabaseURL))
	status, err := infra.MigrationVersion(cfg.DatabaseURL)
	require.NoError(t, err)
	assert.False(t, status.Dirty)

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	users := repository.NewUserRepository(db)
	for _, u := range []struct{ name, role string }{{"admin", model.RoleAdmin}, {"maria", model.RoleRoaster}} {
		hash, err := service.HashPassword("password123")
		require.NoError(t, err)
		require.NoError(t, users.Create(ctx, &model.User{Username: u.name, FullName: u.name, PasswordHash: hash, Role: u.role}))
	}

	engine := router.New(router.Deps{Config: cfg, DB: db, Redis: rdb, Dispatcher: worker.NewDispatcher(rdb)})
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	env := &e2eEnv{server: srv, db: db, rdb: rdb, cfg: cfg}
	env.admin = env.login(t, "admin")
	env.roaster = env.login(t, "maria")
	return env
}

func (e *e2eEnv) do(t *testing.T, method, path string, body io.Reader, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeResp(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *e2eEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/auth/login", jsonBody(t, map[string]string{"username": username, "password": "password123"}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeResp(t, resp, &body)
	return body.AccessToken
}

func (e *e2eEnv) createVariety(t *testing.T, name string, green int) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/beans", jsonBody(t, map[string]any{"name": name, "stock_green": green}), e.admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var v struct {
		ID string `json:"id"`
	}
	decodeResp(t, resp, &v)
	return v.ID
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_RoastCycleProducesReport(t *testing.T) {
	env := setupE2E(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batchRepo := repository.NewBatchRepository(env.db)
	worker.NewPool(env.rdb, map[string]worker.Handler{
		worker.JobRoastReport: worker.NewRoastReportWorker(batchRepo, nil, env.cfg.ReportStoragePath, ""),
	}).Start(ctx, 1)

	varietyID := env.createVariety(t, "Ethiopia Guji", 3000)

	resp := env.do(t, http.MethodPost, "/v1/roasting", jsonBody(t, map[string]any{"bean_variety_id": varietyID, "initial_weight": 3000}), env.roaster)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var batch struct {
		ID string `json:"id"`
	}
	decodeResp(t, resp, &batch)

	for i, temp := range []float64{200, 160, 178, 196, 207} {
		resp := env.do(t, http.MethodPost, "/v1/roasting/"+batch.ID+"/log", jsonBody(t, map[string]any{
			"time_index": i * 60, "temperature": temp, "airflow": 50, "is_first_crack": i == 3,
		}), env.roaster)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = env.do(t, http.MethodPatch, "/v1/roasting/"+batch.ID+"/finish", jsonBody(t, map[string]any{"final_time": "12:30", "final_temp": 208}), env.roaster)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/v1/beans/"+varietyID, nil, env.admin)
	var v struct {
		StockGreen   int `json:"stock_green"`
		StockRoasted int `json:"stock_roasted"`
	}
	decodeResp(t, resp, &v)
	assert.Equal(t, 0, v.StockGreen)
	assert.Equal(t, 2100, v.StockRoasted)

	report := filepath.Join(env.cfg.ReportStoragePath, "roast_"+batch.ID+".pdf")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(report)
		return err == nil
	}, 15*time.Second, 200*time.Millisecond)
}

func TestE2E_ConcurrentStartsOnPostgres(t *testing.T) {
	env := setupE2E(t)
	varietyID := env.createVariety(t, "Colombia Huila", 2500)

	// Same roaster twice: the partial unique index admits one active batch.
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes []int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := env.do(t, http.MethodPost, "/v1/roasting", jsonBody(t, map[string]any{"bean_variety_id": varietyID, "initial_weight": 1000}), env.roaster)
			resp.Body.Close()
			mu.Lock()
			codes = append(codes, resp.StatusCode)
			mu.Unlock()
		}()
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusConflict, c)
		}
	}
	assert.Equal(t, 1, created)

	resp := env.do(t, http.MethodGet, "/v1/beans/"+varietyID, nil, env.admin)
	var v struct {
		StockGreen int `json:"stock_green"`
	}
	decodeResp(t, resp, &v)
	assert.Equal(t, 1500, v.StockGreen)
}

func TestE2E_HealthAndRateLimit(t *testing.T) {
	env := setupE2E(t)

	resp := env.do(t, http.MethodGet, "/health", nil, "")
	var health map[string]any
	decodeResp(t, resp, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", health["redis"])

	// login is limited to 20 per minute per IP; setup already used 2
	limited := false
	for i := 0; i < 25; i++ {
		resp := env.do(t, http.MethodPost, "/v1/auth/login", jsonBody(t, map[string]string{"username": "admin", "password": "bad-password"}), "")
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			assert.NotEmpty(t, resp.Header.Get("Retry-After"))
			break
		}
	}
	assert.True(t, limited)
}
