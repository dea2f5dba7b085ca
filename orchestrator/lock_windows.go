//go:build windows

package orchestrator

import (
	"fmt"
	"os"
)

// fileLock approximates the unix flock with exclusive create-or-open
// semantics. Windows denies sharing violations at open time, which is
// close enough for the single-writer guard.
type fileLock struct {
	f *os.File
}

func acquireFileLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	l.f = nil
}
