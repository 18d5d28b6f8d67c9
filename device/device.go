/*
	Package device provides positioned reads over a raw block device. A Session owns the device handle exclusively
	for its lifetime; the current byte offset is observable state and every seek returns the new offset.
*/
package device

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrShortRead indicates the device returned fewer bytes than requested. The device is assumed not to be a stream,
// so a short read is an error, not a condition to retry.
var ErrShortRead = errors.New("short read")

// A Session is a positioned reader over one exclusively-owned device handle. It is not safe for concurrent use;
// all operations form a single total order.
type Session struct {
	r      io.ReadSeeker
	closer io.Closer
	offset int64
}

// Open opens the block device at path read-only and returns a Session positioned at offset zero.
func Open(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open device %s: %w", path, err)
	}
	return &Session{r: f, closer: f}, nil
}

// New creates a Session over an already-open handle. Close is a no-op for sessions created this way.
func New(r io.ReadSeeker) *Session {
	return &Session{r: r}
}

// Offset returns the current byte offset on the device.
func (s *Session) Offset() int64 {
	return s.offset
}

// SeekAbs positions the device at the absolute byte offset and returns the new offset.
func (s *Session) SeekAbs(offset int64) (int64, error) {
	n, err := s.r.Seek(offset, io.SeekStart)
	if err != nil {
		return s.offset, fmt.Errorf("unable to seek to offset %d: %w", offset, err)
	}
	if n != offset {
		return s.offset, fmt.Errorf("wanted to seek to %d but reached %d", offset, n)
	}
	s.offset = n
	return n, nil
}

// SeekRel moves the device position by delta bytes relative to the current offset and returns the new offset.
func (s *Session) SeekRel(delta int64) (int64, error) {
	n, err := s.r.Seek(delta, io.SeekCurrent)
	if err != nil {
		return s.offset, fmt.Errorf("unable to seek by %d: %w", delta, err)
	}
	s.offset = n
	return n, nil
}

// ReadFull fills buf completely from the current position and advances the offset. Anything less than a full read
// wraps ErrShortRead.
func (s *Session) ReadFull(buf []byte) error {
	n, err := io.ReadFull(s.r, buf)
	s.offset += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: wanted %d bytes at offset %d but got %d", ErrShortRead, len(buf), s.offset-int64(n), n)
		}
		return fmt.Errorf("unable to read %d bytes at offset %d: %w", len(buf), s.offset-int64(n), err)
	}
	return nil
}

// Size returns the total size of the device by seeking to its end; the current position is restored before
// returning.
func (s *Session) Size() (int64, error) {
	cur := s.offset
	end, err := s.r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("unable to determine device size: %w", err)
	}
	if _, err := s.r.Seek(cur, io.SeekStart); err != nil {
		return 0, fmt.Errorf("unable to restore device position: %w", err)
	}
	return end, nil
}

// Close releases the device handle for sessions created with Open.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
