package rendezvous

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAbsoluteExists(t *testing.T) {
	dir := t.TempDir()
	a := &Absolute{dir: dir}

	if a.Exists("stamp") {
		t.Fatal("stamp unexpectedly exists")
	}
	if err := os.WriteFile(filepath.Join(dir, "stamp"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !a.Exists("stamp") {
		t.Fatal("stamp should exist")
	}
}

func TestAbsoluteReadPid(t *testing.T) {
	dir := t.TempDir()
	a := &Absolute{dir: dir}

	if _, ok := a.ReadPid(); ok {
		t.Fatal("ReadPid() ok=true with no pidfile")
	}

	if err := os.WriteFile(filepath.Join(dir, HelperPidfile), []byte("1234"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, ok := a.ReadPid()
	if !ok || pid != 1234 {
		t.Fatalf("ReadPid() = %d, %v; want 1234, true", pid, ok)
	}
}

func TestAbsoluteReadPidUnparseable(t *testing.T) {
	dir := t.TempDir()
	a := &Absolute{dir: dir}
	if err := os.WriteFile(filepath.Join(dir, HelperPidfile), []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.ReadPid(); ok {
		t.Fatal("ReadPid() ok=true for unparseable content")
	}
}
