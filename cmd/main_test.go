package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/docker/go-connections/nat"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/sbilibin2017/gw-items-api/internal/migrations"
)

// resetFlags resets the global flag.CommandLine to avoid "flag redefined" panic
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
}

var configKeys = []string{
	"APP_HOST", "APP_PORT", "APP_LOG_LEVEL", "API_PREFIX", "CORS_ALLOWED_ORIGINS",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"POSTGRES_MAX_OPEN_CONNS", "POSTGRES_MAX_IDLE_CONNS",
	"REDIS_HOST", "REDIS_PORT", "REDIS_DB", "REDIS_PASSWORD", "REDIS_POOL_SIZE", "REDIS_MIN_IDLE_CONNS",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"JWT_SECRET_KEY", "JWT_EXP_MINUTES", "BCRYPT_COST", "HASH_CONCURRENCY",
}

// resetEnv clears env vars used by parseConfig
func resetEnv() {
	for _, key := range configKeys {
		os.Unsetenv(key)
	}
}

func TestParseFlags_Default(t *testing.T) {
	resetFlags()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd"}
	assert.Equal(t, "config.env", parseFlags())
}

func TestParseFlags_Custom(t *testing.T) {
	resetFlags()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd", "-c", "myconfig.env"}
	assert.Equal(t, "myconfig.env", parseFlags())
}

func TestPrintBuildInfo_Output(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	buildVersion = "v1.0.0"
	buildCommit = "abcd1234"
	buildDate = "2025-09-26"

	printBuildInfo()

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	assert.Equal(t, "Starting service version v1.0.0, commit abcd1234, build 2025-09-26\n", buf.String())
}

func TestParseConfig_Defaults(t *testing.T) {
	resetEnv()

	cfg, err := parseConfig("nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.appHost)
	assert.Equal(t, "8080", cfg.appPort)
	assert.Equal(t, "info", cfg.logLevel)
	assert.Equal(t, "/api/v1", cfg.apiPrefix)
	assert.Equal(t, []string{"*"}, cfg.corsOrigins)

	assert.Equal(t, "localhost", cfg.pgHost)
	assert.Equal(t, 5432, cfg.pgPort)
	assert.Equal(t, "user", cfg.pgUser)
	assert.Equal(t, "password", cfg.pgPassword)
	assert.Equal(t, "database", cfg.pgDB)
	assert.Equal(t, 16, cfg.pgMaxOpenConns)
	assert.Equal(t, 8, cfg.pgMaxIdleConns)

	assert.Empty(t, cfg.redisHost)
	assert.Equal(t, 6379, cfg.redisPort)
	assert.Equal(t, 10, cfg.redisPoolSize)
	assert.Equal(t, 2, cfg.redisMinIdleConns)

	assert.Empty(t, cfg.kafkaBrokers)
	assert.Equal(t, "item-events", cfg.kafkaTopic)

	assert.Equal(t, "YOUR_SECRET_KEY_HERE_CHANGE_IN_PRODUCTION", cfg.jwtSecretKey)
	assert.Equal(t, 30, cfg.jwtExpMinutes)
	assert.Equal(t, bcrypt.DefaultCost, cfg.bcryptCost)
	assert.Positive(t, cfg.hashConcurrency)
}

func TestParseConfig_CustomEnv(t *testing.T) {
	resetEnv()
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("API_PREFIX", "/api/v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("POSTGRES_HOST", "pg.example.com")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("REDIS_HOST", "redis.example.com")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_TOPIC", "items")
	t.Setenv("JWT_SECRET_KEY", "supersecret")
	t.Setenv("JWT_EXP_MINUTES", "5")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("HASH_CONCURRENCY", "3")

	cfg, err := parseConfig("nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.appHost)
	assert.Equal(t, "9090", cfg.appPort)
	assert.Equal(t, "debug", cfg.logLevel)
	assert.Equal(t, "/api/v2", cfg.apiPrefix)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.corsOrigins)
	assert.Equal(t, "pg.example.com", cfg.pgHost)
	assert.Equal(t, 5433, cfg.pgPort)
	assert.Equal(t, "redis.example.com", cfg.redisHost)
	assert.Equal(t, 2, cfg.redisDB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.kafkaBrokers)
	assert.Equal(t, "items", cfg.kafkaTopic)
	assert.Equal(t, "supersecret", cfg.jwtSecretKey)
	assert.Equal(t, 5, cfg.jwtExpMinutes)
	assert.Equal(t, 4, cfg.bcryptCost)
	assert.Equal(t, 3, cfg.hashConcurrency)
}

func TestParseConfig_FromFile(t *testing.T) {
	resetEnv()
	path := t.TempDir() + "/config.env"
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=7070\nJWT_EXP_MINUTES=15\n"), 0o600))

	cfg, err := parseConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.appPort)
	assert.Equal(t, 15, cfg.jwtExpMinutes)
}

func TestParseConfig_InvalidInt(t *testing.T) {
	resetEnv()
	t.Setenv("POSTGRES_PORT", "not-a-number")

	_, err := parseConfig("nonexistent.env")
	assert.ErrorContains(t, err, "POSTGRES_PORT")
}

func testConfig() config {
	return config{
		appHost:         "127.0.0.1",
		appPort:         "0",
		apiPrefix:       "/api/v1",
		corsOrigins:     []string{"*"},
		jwtSecretKey:    "testsecret",
		jwtExpMinutes:   30,
		bcryptCost:      bcrypt.MinCost,
		hashConcurrency: 2,
	}
}

// Protected routes answer 401 before any transaction is opened.
func TestRouter_UnauthenticatedNeverTouchesDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig()
	a, err := newApp(cfg, sqlx.NewDb(db, "sqlmock"), nil, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(newRouter(cfg, a))
	defer srv.Close()

	requests := []struct{ method, path, auth string }{
		{http.MethodGet, "/api/v1/items/", ""},
		{http.MethodPost, "/api/v1/items/", ""},
		{http.MethodGet, "/api/v1/items/my-items", ""},
		{http.MethodPut, "/api/v1/items/1", "Bearer garbage"},
		{http.MethodDelete, "/api/v1/items/1", "Basic dXNlcjpwYXNz"},
		{http.MethodGet, "/api/v1/auth/me", ""},
	}
	for _, rq := range requests {
		req, err := http.NewRequest(rq.method, srv.URL+rq.path, strings.NewReader(`{"title":"x"}`))
		require.NoError(t, err)
		if rq.auth != "" {
			req.Header.Set("Authorization", rq.auth)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, rq.path)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
		assert.Equal(t, "Could not validate credentials", body["detail"])
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Registration hashes the password without holding a transaction open.
func TestRouter_RegisterRunsWithoutTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "username", "email", "hashed_password", "is_active", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
		WithArgs("john").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
		WithArgs("john@example.com").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("john", "john@example.com", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "john", "john@example.com", "hash", true, now, nil))

	cfg := testConfig()
	a, err := newApp(cfg, sqlx.NewDb(db, "sqlmock"), nil, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(newRouter(cfg, a))
	defer srv.Close()

	code, body := apiClient{t: t, url: srv.URL}.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "john", "email": "john@example.com", "password": "pass123",
	})

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "john", body["username"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_PublicEndpoints(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig()
	a, err := newApp(cfg, sqlx.NewDb(db, "sqlmock"), nil, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(newRouter(cfg, a))
	defer srv.Close()

	for _, path := range []string{"/", "/health", "/api/v1/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}

	resp, err := http.Get(srv.URL + "/docs/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ------------------ Full integration test ------------------

type apiClient struct {
	t   *testing.T
	url string
}

func (c apiClient) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case url.Values:
		reader = bytes.NewReader([]byte(b.Encode()))
		contentType = "application/x-www-form-urlencoded"
	case nil:
		reader = bytes.NewReader(nil)
	default:
		data, err := json.Marshal(b)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.url+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (c apiClient) registerAndLogin(username string) string {
	c.t.Helper()
	code, _ := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "pass123",
	})
	require.Equal(c.t, http.StatusOK, code)

	code, body := c.do(http.MethodPost, "/api/v1/auth/token", "", url.Values{
		"username": {username}, "password": {"pass123"},
	})
	require.Equal(c.t, http.StatusOK, code)
	require.Equal(c.t, "bearer", body["token_type"])
	return body["access_token"].(string)
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, int) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return host, mapped.Int()
}

func TestItemsScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgHost, pgPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "password", "POSTGRES_DB": "testdb", "POSTGRES_USER": "user"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}, "5432")
	redisHost, redisPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}, "6379")

	var db *sqlx.DB
	var err error
	dsn := fmt.Sprintf("postgres://user:password@%s:%d/testdb?sslmode=disable", pgHost, pgPort)
	for i := 0; i < 10; i++ {
		if db, err = sqlx.ConnectContext(ctx, "pgx", dsn); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Up(ctx, db.DB))

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%d", redisHost, redisPort)})
	defer rdb.Close()

	cfg := testConfig()
	a, err := newApp(cfg, db, rdb, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(newRouter(cfg, a))
	defer srv.Close()

	c := apiClient{t: t, url: srv.URL}
	tokenA := c.registerAndLogin("alice")
	tokenB := c.registerAndLogin("bob")

	// duplicate registration
	code, body := c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "new@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Username already registered", body["detail"])

	code, body = c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "carol", "email": "alice@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email already registered", body["detail"])

	// wrong password
	code, body = c.do(http.MethodPost, "/api/v1/auth/token", "", url.Values{"username": {"alice"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Incorrect username or password", body["detail"])

	code, body = c.do(http.MethodGet, "/api/v1/auth/me", tokenA, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, body, "hashed_password")

	code, item := c.do(http.MethodPost, "/api/v1/items/", tokenA, map[string]string{"title": "Original", "description": "desc"})
	require.Equal(t, http.StatusOK, code)
	itemPath := fmt.Sprintf("/api/v1/items/%d", int64(item["id"].(float64)))
	assert.Equal(t, body["id"], item["owner_id"])

	// bob cannot touch alice's item, and the item is unchanged
	code, body = c.do(http.MethodPut, itemPath, tokenB, map[string]string{"title": "Hacked"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Not enough permissions", body["detail"])

	code, body = c.do(http.MethodDelete, itemPath, tokenB, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = c.do(http.MethodGet, itemPath, tokenB, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Original", body["title"])

	code, body = c.do(http.MethodPut, itemPath, tokenA, map[string]string{"title": "Updated"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Updated", body["title"])
	assert.Equal(t, "desc", body["description"])
	assert.NotNil(t, body["updated_at"])

	code, body = c.do(http.MethodDelete, itemPath, tokenA, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Item deleted successfully", body["message"])

	code, body = c.do(http.MethodGet, itemPath, tokenA, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Item not found", body["detail"])

	code, _ = c.do(http.MethodGet, "/api/v1/items/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// logout revokes the token
	code, _ = c.do(http.MethodPost, "/api/v1/auth/logout", tokenA, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodGet, "/api/v1/auth/me", tokenA, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
