package providers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxDefinitionBytes = 1 << 20

var downloadClient = &http.Client{Timeout: 30 * time.Second}

// Install copies a definition file from a local path or an http(s) URL into
// destDir, named after the provider. The file must parse and validate first.
func Install(source, destDir string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("source is required")
	}
	if destDir == "" {
		return "", fmt.Errorf("providers directory is required")
	}

	data, name, err := readSource(source)
	if err != nil {
		return "", err
	}
	if !isDefinitionFile(name) {
		return "", fmt.Errorf("unsupported definition file %q: want .json, .yaml or .yml", name)
	}

	def, err := decodeDefinition(name, data)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", source, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	def.Source = source
	if err := Validate([]Definition{def}); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	target := filepath.Join(destDir, safeFileName(def.Name)+strings.ToLower(filepath.Ext(name)))
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", err
	}
	return target, nil
}

func readSource(source string) ([]byte, string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return download(source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(source), nil
}

func download(url string) ([]byte, string, error) {
	resp, err := downloadClient.Get(url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download failed: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDefinitionBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxDefinitionBytes {
		return nil, "", fmt.Errorf("definition larger than %d bytes", maxDefinitionBytes)
	}
	name := filepath.Base(resp.Request.URL.Path)
	return data, name, nil
}

func safeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
