package nats

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// serverVersion is the NATS server release fetched when auto-download is enabled
const serverVersion = "2.10.24"

// EnsureServerBinary ensures the NATS server binary is available, downloading
// a release build when allowed.
func EnsureServerBinary(binPath string, autoDL bool) (string, error) {
	if _, err := os.Stat(binPath); err == nil {
		return binPath, nil
	}

	if !autoDL {
		return "", fmt.Errorf("NATS server binary not found at %s and auto-download is disabled", binPath)
	}

	url, err := downloadURL()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(binPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for NATS binary: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "nats-server-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	log.Printf("Downloading NATS server from %s", url)

	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download NATS server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download NATS server: HTTP %d", resp.StatusCode)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save NATS server: %w", err)
	}
	tmpFile.Close()

	if err := extractServerBinary(tmpFile.Name(), binPath); err != nil {
		return "", fmt.Errorf("failed to extract NATS server: %w", err)
	}

	if err := os.Chmod(binPath, 0755); err != nil {
		return "", fmt.Errorf("failed to make NATS server executable: %w", err)
	}

	log.Printf("NATS server installed at %s", binPath)
	return binPath, nil
}

// downloadURL returns the release URL for the current OS/arch
func downloadURL() (string, error) {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	switch runtime.GOARCH {
	case "amd64", "arm64":
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	return fmt.Sprintf(
		"https://github.com/nats-io/nats-server/releases/download/v%s/nats-server-v%s-%s-%s.zip",
		serverVersion, serverVersion, runtime.GOOS, runtime.GOARCH,
	), nil
}

// extractServerBinary pulls the nats-server binary out of a release zip
func extractServerBinary(zipPath, destPath string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	binaryName := "nats-server"
	if runtime.GOOS == "windows" {
		binaryName = "nats-server.exe"
	}

	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, binaryName) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open file in zip: %w", err)
		}
		defer rc.Close()

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()

		if _, err := io.Copy(out, rc); err != nil {
			return fmt.Errorf("failed to copy binary: %w", err)
		}

		return nil
	}

	return fmt.Errorf("nats-server binary not found in zip")
}
