package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	for _, dir := range []string{safe, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	inside := filepath.Join(safe, "frame_001.png")
	if err := os.WriteFile(inside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePathWithinDirectory(inside, safe); err != nil {
		t.Errorf("file inside rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(safe, "new.csv"), safe); err != nil {
		t.Errorf("nonexistent file inside rejected: %v", err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(outside, "a.png"), safe); err == nil {
		t.Error("file outside accepted")
	}
	if err := ValidatePathWithinDirectory(filepath.Join(safe, "..", "outside", "a.png"), safe); err == nil {
		t.Error("dot-dot traversal accepted")
	}
}

func TestValidatePathWithinDirectorySymlink(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	for _, dir := range []string{safe, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	secret := filepath.Join(outside, "secret.png")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(safe, "link.png")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := ValidatePathWithinDirectory(link, safe); err == nil {
		t.Error("symlink escaping the directory accepted")
	}

	dirLink := filepath.Join(safe, "sub")
	if err := os.Symlink(outside, dirLink); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePathWithinDirectory(filepath.Join(dirLink, "new.png"), safe); err == nil {
		t.Error("path through symlinked ancestor accepted")
	}
}
