package journal

import (
	"bufio"
	"fmt"
	"os"
)

// fileRotator owns the journal file handle and its buffered writer
type fileRotator struct {
	path   string
	file   *os.File
	writer *bufio.Writer
}

func newFileRotator(path string) *fileRotator {
	return &fileRotator{path: path}
}

func (fr *fileRotator) open() error {
	file, err := os.OpenFile(fr.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fr.path, err)
	}
	fr.file = file
	fr.writer = bufio.NewWriter(file)
	return nil
}

// truncate cuts the file to size; with O_APPEND later writes follow it
func (fr *fileRotator) truncate(size int64) error {
	if err := fr.writer.Flush(); err != nil {
		return err
	}
	if err := fr.file.Truncate(size); err != nil {
		return err
	}
	return fr.file.Sync()
}

// sync flushes the buffer and syncs the file to disk
func (fr *fileRotator) sync() error {
	if fr.writer != nil {
		if err := fr.writer.Flush(); err != nil {
			return err
		}
	}
	if fr.file == nil {
		return nil
	}
	return fr.file.Sync()
}

func (fr *fileRotator) close() error {
	if fr.file == nil {
		return nil
	}
	if err := fr.sync(); err != nil {
		return err
	}
	err := fr.file.Close()
	fr.file = nil
	fr.writer = nil
	return err
}

// rotate atomically replaces the current file with a new empty one.
// On failure the rotator reopens the original file.
func (fr *fileRotator) rotate() error {
	if fr.file == nil {
		return fmt.Errorf("no file to rotate")
	}
	if err := fr.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotate: %w", err)
	}

	newPath := fr.path + ".new"
	newFile, err := os.OpenFile(newPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new file: %w", err)
	}

	closeErr := fr.file.Close()

	if err := os.Rename(newPath, fr.path); err != nil {
		newFile.Close()
		if oldFile, reopenErr := os.OpenFile(fr.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644); reopenErr == nil {
			fr.file = oldFile
			fr.writer = bufio.NewWriter(oldFile)
		}
		return fmt.Errorf("failed to rename file: %w (close error: %v)", err, closeErr)
	}

	fr.file = newFile
	fr.writer = bufio.NewWriter(newFile)
	return nil
}

func (fr *fileRotator) size() int64 {
	info, err := os.Stat(fr.path)
	if err != nil {
		return 0
	}
	return info.Size()
}
