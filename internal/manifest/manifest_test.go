package manifest

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `id: app.b
name: App B
version: 1.2.3
description: demo application
properties:
  Category: games
`

func writeZipPackage(t *testing.T, dir, name, manifest string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	if manifest != "" {
		w, err := zw.Create(ManifestName)
		require.NoError(t, err)
		_, err = w.Write([]byte(manifest))
		require.NoError(t, err)
	}
	w, err := zw.Create("payload.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func writeTarGzPackage(t *testing.T, dir, name, manifest string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	body := []byte(manifest)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "pkg/" + ManifestName,
		Mode:     0o644,
		Size:     int64(len(body)),
		Typeflag: tar.TypeReg,
	}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return path
}

func TestOpenZipPackage(t *testing.T) {
	pkg := writeZipPackage(t, t.TempDir(), "app-b.pkg", validManifest)

	m, err := Open(pkg)
	require.NoError(t, err)
	assert.Equal(t, "app.b", m.ID)
	assert.Equal(t, "App B", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Equal(t, "games", m.Properties["Category"])
}

func TestOpenTarGzPackage(t *testing.T) {
	pkg := writeTarGzPackage(t, t.TempDir(), "app-b.tar.gz", validManifest)

	m, err := Open(pkg)
	require.NoError(t, err)
	assert.Equal(t, "app.b", m.ID)
}

func TestOpenRejectsUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a package"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestOpenRejectsMissingManifest(t *testing.T) {
	pkg := writeZipPackage(t, t.TempDir(), "empty.pkg", "")

	_, err := Open(pkg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrManifestMissing))
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.pkg"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		m    Manifest
		ok   bool
	}{
		{"valid", Manifest{ID: "app.a", Name: "A", Version: "1.0"}, true},
		{"valid multi segment", Manifest{ID: "org.example.app2", Name: "A", Version: "1.0"}, true},
		{"missing id", Manifest{Name: "A", Version: "1.0"}, false},
		// "app-b" would share a bus address with "app.b".
		{"dashed id", Manifest{ID: "app-b", Name: "A", Version: "1.0"}, false},
		{"uppercase id", Manifest{ID: "App.A", Name: "A", Version: "1.0"}, false},
		{"spaces in id", Manifest{ID: "app a", Name: "A", Version: "1.0"}, false},
		{"trailing dot", Manifest{ID: "app.", Name: "A", Version: "1.0"}, false},
		{"missing name", Manifest{ID: "app.a", Version: "1.0"}, false},
		{"missing version", Manifest{ID: "app.a", Name: "A"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.m.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
