package rendezvous

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

// RunDir holds an O_PATH descriptor on RunDirPath captured before any
// chroot, so the helper child can keep touching /run stamps after it
// has pivoted into the real root filesystem — exactly the reason the
// original opens /run with O_PATH ahead of fork().
type RunDir struct {
	fd int
}

// OpenRunDir opens RunDirPath as an O_PATH descriptor.
func OpenRunDir() (*RunDir, error) {
	return openDir(RunDirPath)
}

func openDir(path string) (*RunDir, error) {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &RunDir{fd: fd}, nil
}

// Close releases the descriptor.
func (r *RunDir) Close() error {
	return unix.Close(r.fd)
}

// Exists reports whether name exists, relative to the captured
// directory, regardless of the caller's current root.
func (r *RunDir) Exists(name string) bool {
	err := unix.Faccessat(r.fd, name, unix.F_OK, 0)
	return err == nil
}

// Remove unlinks name, relative to the captured directory. Absence is
// not an error.
func (r *RunDir) Remove(name string) error {
	err := unix.Unlinkat(r.fd, name, 0)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("unlinkat %s: %w", name, err)
	}
	return nil
}

// WritePid creates name containing pid's ASCII-decimal representation,
// relative to the captured directory.
func (r *RunDir) WritePid(name string, pid int) error {
	return r.WriteString(name, strconv.Itoa(pid))
}

// WriteString creates name containing contents, relative to the
// captured directory, truncating any existing file of that name.
func (r *RunDir) WriteString(name, contents string) error {
	fd, err := unix.Openat(r.fd, name, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("openat %s: %w", name, err)
	}
	defer unix.Close(fd)

	data := []byte(contents)
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		data = data[n:]
	}
	return nil
}
