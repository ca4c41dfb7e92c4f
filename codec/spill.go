package codec

import (
	"fmt"
	"io"
	"os"

	"github.com/adobe/zdw/compress"
	"github.com/adobe/zdw/errs"
)

// spillFile buffers pass-1 rows of one block when the input stream cannot
// be rewound. Rows are gzip-compressed on the way to disk to reduce writes;
// the second pass re-reads them byte-identically.
type spillFile struct {
	path string
	file *os.File
	zw   io.WriteCloser
}

// newSpillFile creates the spill for one block under dir (the output
// directory), named after the output base name and block ordinal.
func newSpillFile(dir, base string, blockIndex int) (*spillFile, error) {
	path := fmt.Sprintf("%s/%s.tmp.%d.gz", dir, base, blockIndex)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrCannotOpenTempFile, path, err)
	}
	zw, err := compress.GzipCodec{}.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return &spillFile{path: path, file: f, zw: zw}, nil
}

// Write appends raw row bytes to the spill.
func (s *spillFile) Write(p []byte) (int, error) {
	n, err := s.zw.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %s: %v", errs.ErrCannotOpenTempFile, s.path, err)
	}

	return n, nil
}

// finish flushes and closes the spill for writing.
func (s *spillFile) finish() error {
	if err := s.zw.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrCannotOpenTempFile, s.path, err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrCannotOpenTempFile, s.path, err)
	}

	return nil
}

// open reopens the finished spill for the second pass.
func (s *spillFile) open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrCannotOpenTempFile, s.path, err)
	}
	zr, err := compress.GzipCodec{}.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &spillReadCloser{zr: zr, f: f}, nil
}

// remove deletes the spill from disk.
func (s *spillFile) remove() {
	os.Remove(s.path)
}

type spillReadCloser struct {
	zr io.ReadCloser
	f  *os.File
}

func (s *spillReadCloser) Read(p []byte) (int, error) { return s.zr.Read(p) }

func (s *spillReadCloser) Close() error {
	err := s.zr.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}

	return err
}
