// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"errors"
	"io"
	"os"
)

// PageSource splits a firmware file into fixed-size pages. The last short
// page is padded with 0xFF, the erased flash value.
type PageSource struct {
	f        *os.File
	path     string
	size     int64
	offset   int64
	pageSize int
}

// OpenPageSource opens path for paged reading
func OpenPageSource(path string, pageSize int) (*PageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Path: path, Op: "open", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &FileError{Path: path, Op: "stat", Err: err}
	}
	return &PageSource{f: f, path: path, size: info.Size(), pageSize: pageSize}, nil
}

// Size returns the file size in bytes
func (s *PageSource) Size() int64 {
	return s.size
}

// Pages returns the number of pages the file spans
func (s *PageSource) Pages() int {
	return int((s.size + int64(s.pageSize) - 1) / int64(s.pageSize))
}

// Next returns the next padded page and the number of file bytes in it.
// final is set once the file is exhausted. n is 0 when nothing was left.
func (s *PageSource) Next() (page []byte, n int, final bool, err error) {
	page = make([]byte, s.pageSize)
	for i := range page {
		page[i] = 0xFF
	}

	n, err = io.ReadFull(s.f, page)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		err = nil
		final = true
	case err != nil:
		return nil, n, true, &FileError{Path: s.path, Op: "read", Err: err}
	}
	s.offset += int64(n)
	if s.offset >= s.size {
		final = true
	}
	return page, n, final, nil
}

// Close closes the underlying file
func (s *PageSource) Close() error {
	return s.f.Close()
}

// PageSink accumulates pages into an output file. The file is created up
// front but only truncated when the first page lands, so an aborted READ
// leaves a file that is valid up to the last flushed page.
type PageSink struct {
	f       *os.File
	path    string
	pages   int
	written int
}

// CreatePageSink opens path for writing, creating it if absent
func CreatePageSink(path string) (*PageSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &FileError{Path: path, Op: "create", Err: err}
	}
	return &PageSink{f: f, path: path}, nil
}

// WritePage flushes one page: the first page overwrites, later pages append
func (s *PageSink) WritePage(page []byte) error {
	if s.pages == 0 {
		if err := s.f.Truncate(0); err != nil {
			return &FileError{Path: s.path, Op: "truncate", Err: err}
		}
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return &FileError{Path: s.path, Op: "seek", Err: err}
		}
	}
	n, err := s.f.Write(page)
	s.written += n
	if err != nil {
		return &FileError{Path: s.path, Op: "write", Err: err}
	}
	s.pages++
	return nil
}

// Pages returns the number of pages flushed
func (s *PageSink) Pages() int {
	return s.pages
}

// Bytes returns the number of bytes flushed
func (s *PageSink) Bytes() int {
	return s.written
}

// Close closes the output file
func (s *PageSink) Close() error {
	return s.f.Close()
}
