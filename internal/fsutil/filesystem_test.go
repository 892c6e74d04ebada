package fsutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystemRoundTrip(t *testing.T) {
	fs := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, "out.csv")
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("x,y\n")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(data, []byte("x,y\n")) {
		t.Errorf("read back %q, err %v", data, err)
	}
}

func TestMemoryFileSystem(t *testing.T) {
	fs := NewMemoryFileSystem()
	if _, err := fs.Create("/out/report.csv"); err == nil {
		t.Error("create without parent directory accepted")
	}

	if err := fs.MkdirAll("/out/charts", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	f, err := fs.Create("/out/report.csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	// Not visible until Close.
	if _, err := fs.ReadFile("/out/report.csv"); err == nil {
		t.Error("unclosed file already readable")
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := fs.ReadFile("/out/report.csv")
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}
	if got := fs.Paths(); len(got) != 1 || got[0] != "/out/report.csv" {
		t.Errorf("Paths = %v", got)
	}
	if _, err := fs.ReadFile("/out/absent.csv"); err == nil {
		t.Error("missing file readable")
	}
}
