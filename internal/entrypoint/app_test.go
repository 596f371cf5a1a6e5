package entrypoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/config"
	"github.com/mrlokans/epubshelf/internal/remote/remotetest"
)

func testConfig(t *testing.T, remoteURL string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "shelf.db")
	cfg.Remote.BaseURL = remoteURL
	cfg.Remote.Timeout = 2 * time.Second
	cfg.Remote.RetryCount = 0
	cfg.Connectivity.DialTimeout = time.Second
	return cfg
}

func TestNewApp_WithoutBackgroundWork(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	app, err := NewApp(cfg, Options{QuietDB: true})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Tasks)
	assert.Nil(t, app.Monitor)

	routerCfg := app.RouterConfig("test")
	assert.Nil(t, routerCfg.TaskClient)
	assert.NotNil(t, routerCfg.Catalog)
}

func TestNewApp_WithTasks(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	app, err := NewApp(cfg, Options{Tasks: true, Monitor: true, QuietDB: true})
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Tasks)
	require.NotNil(t, app.Monitor)
	assert.NotNil(t, app.RouterConfig("test").TaskClient)

	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.Database.Path), "shelf-tasks.db"))
	assert.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	app.Shutdown(ctx)
}

func TestNewApp_InvalidRemoteURL(t *testing.T) {
	cfg := testConfig(t, "::not a url")
	_, err := NewApp(cfg, Options{QuietDB: true})
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	srv := remotetest.NewServer()
	defer srv.Close()

	app, err := NewApp(testConfig(t, srv.URL), Options{QuietDB: true})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, catalogsync.StateOnlineSynced, app.Connect(context.Background()))

	srv.SetHealthy(false)
	app.Coordinator.CheckRemote(context.Background(), true)
	assert.Equal(t, catalogsync.StateOnlineDegraded, app.Coordinator.State())

	srv.Close()
	assert.Equal(t, catalogsync.StateOffline, app.Connect(context.Background()))
}
