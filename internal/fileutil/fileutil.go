// Package fileutil provides copy and move helpers used by the archiver.
package fileutil

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst, creating parent directories as needed. The
// destination is written through a temp file and renamed into place so a
// crash never leaves a half-written file under the final name.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".autoprint-copy-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if info, err := os.Stat(src); err == nil {
		_ = os.Chmod(tmpPath, info.Mode().Perm())
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("finalize copy: %w", err)
	}
	return nil
}

// CopyFileVerified copies src to dst and confirms the copy by comparing
// sizes and SHA-256 digests. Used when a move crosses filesystems and the
// source will be deleted afterwards.
func CopyFileVerified(src, dst string) error {
	if err := CopyFile(src, dst); err != nil {
		return err
	}

	srcSum, srcSize, err := hashFile(src)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}
	dstSum, dstSize, err := hashFile(dst)
	if err != nil {
		return fmt.Errorf("hash copy: %w", err)
	}
	if srcSize != dstSize {
		return fmt.Errorf("copy size mismatch: source %d bytes, copy %d bytes", srcSize, dstSize)
	}
	if srcSum != dstSum {
		return errors.New("copy checksum mismatch")
	}
	return nil
}

// MoveFile relocates src to dst. A plain rename is tried first; when the
// destination is on another filesystem the file is copied, verified, and the
// source removed.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("rename: %w", err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, errCrossDevice)
	}
	return errors.Is(err, errCrossDevice)
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}
