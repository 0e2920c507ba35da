package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileLimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		maxSize     int64
		wantErr     bool
		errContains string
	}{
		{
			name:    "read small file",
			content: "projects: []",
			maxSize: 100,
		},
		{
			name:    "read file at exact limit",
			content: "12345",
			maxSize: 5,
		},
		{
			name:        "file exceeds limit",
			content:     "this content is too long",
			maxSize:     10,
			wantErr:     true,
			errContains: "exceeds maximum",
		},
		{
			name:    "empty file",
			content: "",
			maxSize: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "seed.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			data, err := ReadFileLimited(path, tt.maxSize)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.content {
				t.Errorf("got %q, want %q", data, tt.content)
			}
		})
	}
}

func TestReadFileLimited_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := ReadFileLimited(filepath.Join(t.TempDir(), "missing.yaml"), 100)
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestReadFileLimited_Directory(t *testing.T) {
	t.Parallel()

	_, err := ReadFileLimited(t.TempDir(), MaxSeedFileSize)
	if err == nil || !strings.Contains(err.Error(), "directory") {
		t.Errorf("expected directory error, got %v", err)
	}
}
