package logger

import (
	"errors"
	"io"
	"sync"
)

// sink serializes whole lines to the main outputs, and copies error lines to
// a separate errors file when one is configured.
type sink struct {
	mu      sync.Mutex
	out     io.Writer
	errs    io.Writer
	closers []io.Closer
	closed  bool
}

func newSink(outs []io.Writer, errs io.Writer, closers []io.Closer) *sink {
	return &sink{out: io.MultiWriter(outs...), errs: errs, closers: closers}
}

func (s *sink) write(line []byte, isErr bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if _, err := s.out.Write(line); err != nil {
		return err
	}
	if isErr && s.errs != nil {
		_, err := s.errs.Write(line)
		return err
	}
	return nil
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

var errSinkClosed = errors.New("logger: sink closed")
