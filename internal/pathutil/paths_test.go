package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/unaflow/unaflow/internal/faults"
)

func TestDataFile(t *testing.T) {
	dataDir := t.TempDir()
	other := t.TempDir()

	tests := []struct {
		name    string
		file    string
		want    string
		wantErr bool
	}{
		{"relative file", "streets.geojson", filepath.Join(dataDir, "streets.geojson"), false},
		{"nested file", "layers/homes.geojson", filepath.Join(dataDir, "layers", "homes.geojson"), false},
		{"absolute file is kept", filepath.Join(other, "parks.geojson"), filepath.Join(other, "parks.geojson"), false},
		{"dot-dot escape", "../secrets.geojson", "", true},
		{"embedded dot-dot escape", "layers/../../x.geojson", "", true},
		{"empty name", "", "", true},
		{"null byte", "str\x00eets.geojson", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DataFile(dataDir, tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DataFile(%q) error = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
			if tt.wantErr {
				if !faults.Is(err, faults.Configuration) {
					t.Errorf("error kind = %v, want ConfigurationError", faults.KindOf(err))
				}
				return
			}
			if got != tt.want {
				t.Errorf("DataFile(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestChild(t *testing.T) {
	root := t.TempDir()
	got, err := Child(root, "walk_O(homes)_D(parks)")
	if err != nil {
		t.Fatalf("Child: %v", err)
	}
	if got != filepath.Join(root, "walk_O(homes)_D(parks)") {
		t.Errorf("Child = %q", got)
	}
	if _, err := Child(root, "../../escape_O(a)_D(b)"); err == nil {
		t.Error("expected escaping child to be rejected")
	}
}

func TestWithin_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on Windows")
	}
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	if err := Within(filepath.Join(root, "escape", "streets.geojson"), root); err == nil {
		t.Error("symlink pointing outside should be rejected")
	}

	realDir := filepath.Join(root, "real")
	if err := os.MkdirAll(realDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realDir, filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}
	if err := Within(filepath.Join(root, "link", "streets.geojson"), root); err != nil {
		t.Errorf("symlink staying inside should be accepted: %v", err)
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/home/ana/Cities/Riyadh/Data/streets.geojson", ".../Data/streets.geojson"},
		{"/file.txt", "file.txt"},
		{"Data/pairings.csv", ".../Data/pairings.csv"},
		{"pairings.csv", "pairings.csv"},
		{"/a/b/c/", ".../b/c"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.input); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
