package store

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openappstack/installd/internal/logging"
	"github.com/openappstack/installd/internal/manifest"
)

func writePackage(t *testing.T, dir, id, name, version string) string {
	t.Helper()
	path := filepath.Join(dir, id+".pkg")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(manifest.ManifestName)
	require.NoError(t, err)
	fmt.Fprintf(w, "id: %s\nname: %s\nversion: %s\n", id, name, version)
	require.NoError(t, zw.Close())
	return path
}

type recordingObserver struct {
	installed   []string
	uninstalled []string

	// onInstalled lets tests call back into the store mid-dispatch, the
	// way the registry manager does.
	onInstalled func(id string)
}

func (r *recordingObserver) OnApplicationInstalled(id string) {
	r.installed = append(r.installed, id)
	if r.onInstalled != nil {
		r.onInstalled(id)
	}
}

func (r *recordingObserver) OnApplicationUninstalled(id string) {
	r.uninstalled = append(r.uninstalled, id)
}

func TestInstallAndLookup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.NewNop())
	require.NoError(t, err)

	pkg := writePackage(t, t.TempDir(), "app.a", "App A", "1.0.0")
	id, err := s.Install(pkg)
	require.NoError(t, err)
	assert.Equal(t, "app.a", id)

	app, ok := s.GetByID("app.a")
	require.True(t, ok)
	assert.Equal(t, "App A", app.Name)
	assert.Equal(t, "1.0.0", app.Version)
	assert.False(t, app.InstalledAt.IsZero())

	all := s.GetAllInstalled()
	require.Len(t, all, 1)
	assert.Equal(t, "app.a", all[0].ID)
}

func TestInstallDuplicateFails(t *testing.T) {
	s, err := Open(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	pkgDir := t.TempDir()
	pkg := writePackage(t, pkgDir, "app.a", "App A", "1.0.0")
	_, err = s.Install(pkg)
	require.NoError(t, err)

	_, err = s.Install(pkg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already installed")
	assert.Len(t, s.GetAllInstalled(), 1)
}

func TestInstallInvalidPackageFails(t *testing.T) {
	s, err := Open(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pkg")
	require.NoError(t, os.WriteFile(bad, []byte("not an archive"), 0o644))

	_, err = s.Install(bad)
	require.Error(t, err)
	assert.Empty(t, s.GetAllInstalled())
}

func TestUninstall(t *testing.T) {
	s, err := Open(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	pkg := writePackage(t, t.TempDir(), "app.a", "App A", "1.0.0")
	_, err = s.Install(pkg)
	require.NoError(t, err)

	require.NoError(t, s.Uninstall("app.a"))
	_, ok := s.GetByID("app.a")
	assert.False(t, ok)

	err = s.Uninstall("app.a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")
}

func TestObserversRunSynchronouslyAfterMutation(t *testing.T) {
	s, err := Open(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	obs := &recordingObserver{}
	var visibleDuringCallback bool
	obs.onInstalled = func(id string) {
		// The record must be resolvable from inside the callback.
		_, visibleDuringCallback = s.GetByID(id)
	}
	s.AddObserver(obs)

	pkg := writePackage(t, t.TempDir(), "app.a", "App A", "1.0.0")
	_, err = s.Install(pkg)
	require.NoError(t, err)

	// Notified before Install returned.
	assert.Equal(t, []string{"app.a"}, obs.installed)
	assert.True(t, visibleDuringCallback)

	require.NoError(t, s.Uninstall("app.a"))
	assert.Equal(t, []string{"app.a"}, obs.uninstalled)
}

func TestRemovedObserverIsNotNotified(t *testing.T) {
	s, err := Open(t.TempDir(), logging.NewNop())
	require.NoError(t, err)

	obs := &recordingObserver{}
	s.AddObserver(obs)
	s.RemoveObserver(obs)

	pkg := writePackage(t, t.TempDir(), "app.a", "App A", "1.0.0")
	_, err = s.Install(pkg)
	require.NoError(t, err)
	assert.Empty(t, obs.installed)
}

func TestReopenLoadsPersistedRecords(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, logging.NewNop())
	require.NoError(t, err)
	pkgDir := t.TempDir()
	_, err = s.Install(writePackage(t, pkgDir, "app.a", "App A", "1.0.0"))
	require.NoError(t, err)
	_, err = s.Install(writePackage(t, pkgDir, "app.b", "App B", "2.0.0"))
	require.NoError(t, err)

	reopened, err := Open(dir, logging.NewNop())
	require.NoError(t, err)

	all := reopened.GetAllInstalled()
	require.Len(t, all, 2)
	// Sorted by identity.
	assert.Equal(t, "app.a", all[0].ID)
	assert.Equal(t, "app.b", all[1].ID)
}

func TestReopenSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, logging.NewNop())
	require.NoError(t, err)
	_, err = s.Install(writePackage(t, t.TempDir(), "app.a", "App A", "1.0.0"))
	require.NoError(t, err)

	// Drop a corrupt record next to the valid one.
	corrupt := filepath.Join(dir, "apps", "broken.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))

	reopened, err := Open(dir, logging.NewNop())
	require.NoError(t, err)
	all := reopened.GetAllInstalled()
	require.Len(t, all, 1)
	assert.Equal(t, "app.a", all[0].ID)
}

func TestReopenSkipsRecordsWithInvalidIDs(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, logging.NewNop())
	require.NoError(t, err)
	_, err = s.Install(writePackage(t, t.TempDir(), "app.a", "App A", "1.0.0"))
	require.NoError(t, err)

	// Hand-edited records whose ids escape the identity grammar must not
	// load; a loaded id feeds straight into the record path on uninstall.
	for i, id := range []string{"../escape", "app-b", "app/b"} {
		raw := fmt.Sprintf(`{"id": %q, "name": "X", "version": "1.0"}`, id)
		name := fmt.Sprintf("doctored%d.json", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "apps", name), []byte(raw), 0o644))
	}

	reopened, err := Open(dir, logging.NewNop())
	require.NoError(t, err)
	all := reopened.GetAllInstalled()
	require.Len(t, all, 1)
	assert.Equal(t, "app.a", all[0].ID)
}
