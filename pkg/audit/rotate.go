package audit

import (
	"fmt"
	"os"
)

// rotatingFile is an append-only file rotated by size into numbered
// backups (path.1 is the newest).
type rotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	size       int64
}

func openRotating(path string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	r := &rotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := r.open(); err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	info, err := r.file.Stat()
	if err != nil {
		r.file.Close()
		return nil, fmt.Errorf("failed to stat audit log: %w", err)
	}
	r.size = info.Size()
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}

func (r *rotatingFile) Write(p []byte) error {
	if r.maxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	if err != nil {
		return err
	}
	return r.file.Sync()
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}

	if r.maxBackups <= 0 {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			r.open()
			return fmt.Errorf("failed to truncate audit log: %w", err)
		}
	} else {
		os.Remove(r.backupPath(r.maxBackups))
		for i := r.maxBackups - 1; i >= 1; i-- {
			os.Rename(r.backupPath(i), r.backupPath(i+1))
		}
		if err := os.Rename(r.path, r.backupPath(1)); err != nil {
			r.open()
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	if err := r.open(); err != nil {
		return fmt.Errorf("failed to open audit log after rotation: %w", err)
	}
	r.size = 0
	return nil
}

func (r *rotatingFile) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", r.path, n)
}

func (r *rotatingFile) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
