package rendezvous

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunDirWriteExistsRemove(t *testing.T) {
	dir, err := openDir(t.TempDir())
	if err != nil {
		t.Fatalf("openDir() error = %v", err)
	}
	defer dir.Close()

	if dir.Exists("stamp") {
		t.Fatal("stamp unexpectedly exists before creation")
	}

	if err := dir.WritePid("stamp", 4242); err != nil {
		t.Fatalf("WritePid() error = %v", err)
	}
	if !dir.Exists("stamp") {
		t.Fatal("stamp does not exist after WritePid")
	}

	if err := dir.Remove("stamp"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if dir.Exists("stamp") {
		t.Fatal("stamp still exists after Remove")
	}
}

func TestRunDirRemoveMissingIsNotError(t *testing.T) {
	dir, err := openDir(t.TempDir())
	if err != nil {
		t.Fatalf("openDir() error = %v", err)
	}
	defer dir.Close()

	if err := dir.Remove("never-existed"); err != nil {
		t.Errorf("Remove(missing) error = %v, want nil", err)
	}
}

func TestRunDirWriteStringContents(t *testing.T) {
	path := t.TempDir()
	dir, err := openDir(path)
	if err != nil {
		t.Fatalf("openDir() error = %v", err)
	}
	defer dir.Close()

	if err := dir.WriteString("file", "hello"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if !dir.Exists("file") {
		t.Fatal("file does not exist after WriteString")
	}
	got, err := os.ReadFile(filepath.Join(path, "file"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("file contents = %q, want %q", got, "hello")
	}
}
