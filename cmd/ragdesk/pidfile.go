package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFile records the PID of the running server in the data directory.
type pidFile struct {
	path string
}

func newPIDFile(dataDir string) pidFile {
	return pidFile{path: filepath.Join(dataDir, "ragdesk.pid")}
}

// Running returns the PID of a live server, or 0. A file left behind by a
// dead process is removed.
func (p pidFile) Running() (int, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !alive(pid) {
		os.Remove(p.path)
		return 0, nil
	}
	return pid, nil
}

// Acquire writes the current PID, failing if another live server holds the file.
func (p pidFile) Acquire() error {
	pid, err := p.Running()
	if err != nil {
		return err
	}
	if pid != 0 && pid != os.Getpid() {
		return fmt.Errorf("ragdesk is already running (PID %d)", pid)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the file if it still names this process.
func (p pidFile) Release() {
	data, err := os.ReadFile(p.path)
	if err == nil && strings.TrimSpace(string(data)) == strconv.Itoa(os.Getpid()) {
		os.Remove(p.path)
	}
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
