package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/config"
	"github.com/JakeFAU/careers-ingest/internal/dispatcher"
	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const testConfig = `
extractor:
  backend: hosted
  hosted:
    base_url: http://127.0.0.1:1
db:
  backend: memory
storage:
  backend: memory
logging:
  development: false
  level: error
`

type fakeApp struct {
	results map[string]ingest.Result
	errs    map[string]error
	report  dispatcher.BatchReport
	ran     bool
	closed  bool
}

func (f *fakeApp) Run(context.Context) error { f.ran = true; return nil }

func (f *fakeApp) Ingest(_ context.Context, id string) (ingest.Result, error) {
	if err, ok := f.errs[id]; ok {
		return ingest.Result{}, err
	}
	return f.results[id], nil
}

func (f *fakeApp) DispatchAll(context.Context) (dispatcher.BatchReport, error) { return f.report, nil }

func (f *fakeApp) Close(context.Context) error { f.closed = true; return nil }

func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngestCommandPrintsResults(t *testing.T) {
	app := &fakeApp{
		results: map[string]ingest.Result{"c1": {CompanyID: "c1", Status: ingest.RunPublished, JobCount: 3}},
		errs:    map[string]error{"c2": errors.New("extraction failed")},
	}
	withFakeApp(t, app)
	cfg := writeConfig(t, testConfig)

	out, err := run(t, "--config", cfg, "ingest", "c1", "c2")
	require.ErrorContains(t, err, "1 of 2 runs failed")
	require.True(t, app.closed)

	var outputs []ingestOutput
	require.NoError(t, json.Unmarshal([]byte(out), &outputs))
	require.Len(t, outputs, 2)
	require.Equal(t, 3, outputs[0].Result.JobCount)
	require.Equal(t, "extraction failed", outputs[1].Error)
}

func TestIngestCommandAll(t *testing.T) {
	app := &fakeApp{report: dispatcher.BatchReport{Dispatched: []string{"Acme"}, Tasks: []dispatcher.TaskReport{}}}
	withFakeApp(t, app)
	cfg := writeConfig(t, testConfig)

	out, err := run(t, "--config", cfg, "ingest", "--all")
	require.NoError(t, err)
	require.Contains(t, out, `"Acme"`)
}

func TestIngestCommandArgs(t *testing.T) {
	withFakeApp(t, &fakeApp{})
	cfg := writeConfig(t, testConfig)

	_, err := run(t, "--config", cfg, "ingest")
	require.ErrorContains(t, err, "--all is required")
	_, err = run(t, "--config", cfg, "ingest", "--all", "c1")
	require.ErrorContains(t, err, "not both")
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)
	cfg := writeConfig(t, testConfig)

	_, err := run(t, "--config", cfg, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	withFakeApp(t, &fakeApp{})
	cfg := writeConfig(t, "ingest:\n  batch_size: 0\n")

	_, err := run(t, "--config", cfg, "serve")
	require.ErrorContains(t, err, "load config")
}

func TestMigrateCommand(t *testing.T) {
	var gotDSN string
	var gotSteps int
	origUp, origDown := migrateUp, migrateDown
	migrateUp = func(dsn string, _ *zap.Logger) error { gotDSN = dsn; return nil }
	migrateDown = func(dsn string, steps int, _ *zap.Logger) error { gotDSN, gotSteps = dsn, steps; return nil }
	t.Cleanup(func() { migrateUp, migrateDown = origUp, origDown })

	pgConfig := `
extractor:
  hosted:
    base_url: http://127.0.0.1:1
db:
  backend: postgres
  dsn: postgres://localhost/careers
logging:
  level: error
`
	cfg := writeConfig(t, pgConfig)

	_, err := run(t, "--config", cfg, "migrate", "up")
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/careers", gotDSN)

	_, err = run(t, "--config", cfg, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	require.Equal(t, 2, gotSteps)

	_, err = run(t, "--config", cfg, "migrate", "sideways")
	require.Error(t, err)

	memCfg := writeConfig(t, testConfig)
	_, err = run(t, "--config", memCfg, "migrate", "up")
	require.ErrorContains(t, err, "db.backend=postgres")
}
