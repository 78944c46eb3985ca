package http

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"counsellor/dataset"
	"counsellor/db"
	"counsellor/registry"
)

func newReloader(t *testing.T, dir string, testRatio float64, store *db.Store) (*Reloader, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)
	loader := dataset.NewLoader(dataset.LoaderConfig{Dir: dir, TestRatio: testRatio}, reg.ResolveTarget, nil)
	return NewReloader(loader, reg, store, nil), reg
}

func writeTrainingFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const seeTraining = `[
	{"SEE_GPA": "3.6-4.0", "College": "KU"},
	{"SEE_GPA": "3.6-4.0", "College": "KU"},
	{"SEE_GPA": "2.8-3.6", "College": "TU"},
	{"SEE_GPA": "2.8-3.6", "College": "TU"}
]`

func TestReloaderKeepsModelWhenFileBreaks(t *testing.T) {
	dir := t.TempDir()
	see := filepath.Join(dir, "see.json")
	writeTrainingFile(t, see, seeTraining)
	writeTrainingFile(t, filepath.Join(dir, "bachelor.json"), `[{"Faculty": "BSc", "Suggested_Job_Role": "Engineer"}]`)

	reloader, reg := newReloader(t, dir, 0, nil)
	require.NoError(t, reloader.Reload(context.Background()))
	require.Equal(t, []string{"bachelor", "see"}, reg.Datasets())
	before, err := reg.Model("see")
	require.NoError(t, err)

	// half-saved edit
	writeTrainingFile(t, see, `[{"A":"x","Coll`)
	err = reloader.Reload(context.Background())
	require.Error(t, err)
	var fileErr *dataset.FileError
	require.ErrorAs(t, err, &fileErr)
	require.Equal(t, "see", fileErr.Key)

	require.Equal(t, []string{"bachelor", "see"}, reg.Datasets())
	after, err := reg.Model("see")
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)

	// fixing the file publishes a fresh model
	writeTrainingFile(t, see, seeTraining)
	require.NoError(t, reloader.Reload(context.Background()))
	fixed, err := reg.Model("see")
	require.NoError(t, err)
	require.Greater(t, fixed.Version, before.Version)
}

func TestReloaderDropsDeletedDataset(t *testing.T) {
	dir := t.TempDir()
	see := filepath.Join(dir, "see.json")
	writeTrainingFile(t, see, seeTraining)
	writeTrainingFile(t, filepath.Join(dir, "bachelor.json"), `[{"Faculty": "BSc", "Suggested_Job_Role": "Engineer"}]`)

	reloader, reg := newReloader(t, dir, 0, nil)
	require.NoError(t, reloader.Reload(context.Background()))
	require.NoError(t, os.Remove(see))
	require.NoError(t, reloader.Reload(context.Background()))
	require.Equal(t, []string{"bachelor"}, reg.Datasets())
}

func TestReloaderStoresEvaluations(t *testing.T) {
	dir := t.TempDir()
	writeTrainingFile(t, filepath.Join(dir, "see.json"), seeTraining)
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reloader, _ := newReloader(t, dir, 0.5, store)
	require.NoError(t, reloader.Reload(context.Background()))

	logs, err := store.LoadEvaluationLog(context.Background(), "see", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 2, logs[0].Total)
}

func TestReloadEndpointReportsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	see := filepath.Join(dir, "see.json")
	writeTrainingFile(t, see, seeTraining)
	reloader, reg := newReloader(t, dir, 0, nil)

	config := DefaultServerConfig()
	config.RateLimit = 0
	env := &testEnv{registry: reg, handler: NewHandler(config, Deps{Registry: reg, Reload: reloader.HandlerFunc()})}

	_, payload := env.do(t, "POST", "/api/models/reload", "")
	require.Equal(t, true, payload["success"])

	writeTrainingFile(t, see, `[{"A":"x","Coll`)
	_, payload = env.do(t, "POST", "/api/models/reload", "")
	require.Equal(t, false, payload["success"])
	require.Contains(t, payload["error"], "dataset see")
	require.Equal(t, []interface{}{"see"}, payload["datasets"])

	rec, _ := env.do(t, "POST", "/api/recommendations", `{"studentData": {"SEE_GPA": "3.6-4.0"}}`)
	require.Equal(t, 200, rec.Code)
}
