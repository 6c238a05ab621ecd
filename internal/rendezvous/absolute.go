package rendezvous

import (
	"os"
	"path/filepath"
	"strconv"
)

// Absolute reads rendezvous state using plain absolute paths under
// RunDirPath. It is used by the service, which is never pivoted into a
// new root and so never needs descriptor-relative lookups.
type Absolute struct {
	dir string
}

// NewAbsolute builds an Absolute reader rooted at RunDirPath.
func NewAbsolute() *Absolute {
	return &Absolute{dir: RunDirPath}
}

// NewAbsoluteAt builds an Absolute reader rooted at an arbitrary
// directory, for tests that don't want to touch the real /run.
func NewAbsoluteAt(dir string) *Absolute {
	return &Absolute{dir: dir}
}

// Exists reports whether the named stamp file is present.
func (a *Absolute) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(a.dir, name))
	return err == nil
}

// ReadPid reads the helper pidfile and parses its contents as a PID. It
// returns ok=false if the file is absent or unparseable.
func (a *Absolute) ReadPid() (pid int, ok bool) {
	data, err := os.ReadFile(filepath.Join(a.dir, HelperPidfile))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	return n, true
}
