// Package manifest opens application package files (zip, tar.gz, tar.zst)
// and extracts their manifest.yaml.
package manifest
