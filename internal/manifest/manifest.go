package manifest

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ManifestName is the entry every package archive must carry.
const ManifestName = "manifest.yaml"

var (
	// ErrUnsupportedFormat means the package file is not an archive format
	// the store understands.
	ErrUnsupportedFormat = errors.New("unsupported package format")

	// ErrManifestMissing means the archive has no manifest entry.
	ErrManifestMissing = errors.New("package has no " + ManifestName)

	// The dot is the only separator an identity may contain. The bus
	// address derivation folds every non-alphanumeric byte to '_', so
	// admitting a second separator (e.g. '-') would let two distinct
	// identities share an address.
	idPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9]+)*$`)
)

// ValidID reports whether id is an acceptable application identity:
// lowercase alphanumeric segments joined by single dots. Every identity that
// enters the store, whether from a fresh package or a reloaded record, must
// satisfy this.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Manifest describes one application package.
type Manifest struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Description string            `yaml:"description"`
	Properties  map[string]string `yaml:"properties"`
}

// Validate checks the fields every installable package must provide.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return errors.New("manifest: id is required")
	}
	if !ValidID(m.ID) {
		return fmt.Errorf("manifest: invalid id %q", m.ID)
	}
	if m.Name == "" {
		return errors.New("manifest: name is required")
	}
	if m.Version == "" {
		return errors.New("manifest: version is required")
	}
	return nil
}

// Open reads and validates the manifest from the package file at pkgPath.
// Supported formats: zip, tar.gz, tar.zst.
func Open(pkgPath string) (*Manifest, error) {
	info, err := os.Stat(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", pkgPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("package %s: is a directory", pkgPath)
	}

	kind, err := mimetype.DetectFile(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", pkgPath, err)
	}

	var raw []byte
	switch {
	case kind.Is("application/zip"):
		raw, err = manifestFromZip(pkgPath)
	case kind.Is("application/gzip"):
		raw, err = manifestFromTar(pkgPath, newGzipReader)
	case kind.Is("application/zstd"):
		raw, err = manifestFromTar(pkgPath, newZstdReader)
	default:
		return nil, fmt.Errorf("package %s: %s: %w", pkgPath, kind.String(), ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", pkgPath, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("package %s: parsing manifest: %w", pkgPath, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("package %s: %w", pkgPath, err)
	}
	return &m, nil
}

func manifestFromZip(pkgPath string) ([]byte, error) {
	r, err := zip.OpenReader(pkgPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if path.Base(f.Name) != ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, ErrManifestMissing
}

type decompressor func(io.Reader) (io.ReadCloser, error)

func newGzipReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

func manifestFromTar(pkgPath string, open decompressor) ([]byte, error) {
	f, err := os.Open(pkgPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := open(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, ErrManifestMissing
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != ManifestName {
			continue
		}
		return io.ReadAll(tr)
	}
}
