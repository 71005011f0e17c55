package serverapp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/config"
	"relquery/internal/logging"
	"relquery/internal/naming"
)

const testModels = `
models:
  - table: organizations
    fields:
      - {name: id, type: uuid, primary_key: true, immutable: true}
      - {name: name, type: string}
  - table: users
    fields:
      - {name: id, type: uuid, primary_key: true, immutable: true}
      - {name: name, type: string}
      - {name: organization_id, type: uuid, nullable: true}
    relations:
      - {name: organization, target: organizations, from: organization_id}
`

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text", Output: io.Discard})
}

func writeModels(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testModels), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "relquery",
			Password: "invalid",
			Database: "relquery",
			SSLMode:  "disable",
			Pool: config.PoolConfig{
				MaxOpen:     1,
				MaxIdle:     1,
				MaxLifetime: time.Second,
			},
			ConnectionRetryInterval: 10 * time.Millisecond,
		},
		Server: config.ServerConfig{
			Port:               18089,
			ReadTimeout:        time.Second,
			WriteTimeout:       time.Second,
			IdleTimeout:        time.Second,
			ShutdownTimeout:    time.Second,
			HealthCheckTimeout: time.Second,
		},
		Query: config.QueryConfig{
			ModelsFile:   writeModels(t),
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "relquery",
			Environment: "test",
			Logging:     config.LoggingConfig{Level: "info", Format: "text"},
		},
		Naming: naming.DefaultConfig(),
	}
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	require.NoError(t, err)
	assert.Equal(t, "signal", reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(stop, serverErrors)
	require.Error(t, err)
	assert.Equal(t, "server_error", reason)
}

func TestWaitForStop_NoChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	assert.Error(t, err)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCleanupStack_RunsInReverse(t *testing.T) {
	var order []string
	s := cleanupStack{}
	s.push("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.push("second", func(context.Context) error { order = append(order, "second"); return errors.New("ignored") })
	s.run(context.Background(), testLogger())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	assert.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	errs, err := app.Start()
	require.NoError(t, err)
	again, err := app.Start()
	require.NoError(t, err)
	assert.Equal(t, errs, again)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(testConfig(t), nil)
	assert.Error(t, err)
}

func TestNew_LoadsModels(t *testing.T) {
	app, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "relquery", app.effectiveDatabase)
	assert.False(t, app.dsnPresent)
	require.Len(t, app.Registry().Models(), 2)
	_, ok := app.Registry().Lookup("users")
	assert.True(t, ok)
}

func TestNew_MissingModelsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Query.ModelsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model declarations")
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	app, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.Error(t, app.Init(ctx), "unreachable database")

	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	assert.False(t, app.initialized)
	assert.Nil(t, app.handler)
}
