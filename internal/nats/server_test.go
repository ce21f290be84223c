package nats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseNatsURL(t *testing.T) {
	cases := []struct {
		input    string
		wantHost string
		wantPort string
		wantErr  bool
	}{
		{"nats://127.0.0.1:4222", "127.0.0.1", "4222", false},
		{"nats://localhost:4333", "localhost", "4333", false},
		{"127.0.0.1:4222", "127.0.0.1", "4222", false},
		{"nats://127.0.0.1", "", "", true},
		{"garbage", "", "", true},
	}

	for _, tc := range cases {
		host, port, err := parseNatsURL(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseNatsURL(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseNatsURL(%q) unexpected error: %v", tc.input, err)
			continue
		}
		if host != tc.wantHost || port != tc.wantPort {
			t.Errorf("parseNatsURL(%q) = %q:%q, want %q:%q", tc.input, host, port, tc.wantHost, tc.wantPort)
		}
	}
}

func TestEnsureServerBinaryExisting(t *testing.T) {
	// An existing file is returned as-is without any download
	tmp := filepath.Join(t.TempDir(), "nats-server")
	if err := os.WriteFile(tmp, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("Failed to write fake binary: %v", err)
	}

	path, err := EnsureServerBinary(tmp, false)
	if err != nil {
		t.Fatalf("EnsureServerBinary failed: %v", err)
	}
	if path != tmp {
		t.Errorf("Path = %q, want %q", path, tmp)
	}
}

func TestEnsureServerBinaryMissingNoAutoDL(t *testing.T) {
	if _, err := EnsureServerBinary(filepath.Join(t.TempDir(), "missing"), false); err == nil {
		t.Errorf("Expected error when binary is missing and auto-download is disabled")
	}
}

func TestDownloadURL(t *testing.T) {
	url, err := downloadURL()
	if err != nil {
		t.Fatalf("downloadURL failed: %v", err)
	}
	if url == "" {
		t.Errorf("URL should not be empty")
	}
}
