// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mshsession implements the mutually-exclusive request/response
// channel against the msh-prompted serial shell: exactly one exec runs at
// a time, and every exec writes a command line and reads until the next
// prompt.
package mshsession

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.bug.st/serial"
)

// ErrTimeout is returned when an exec's deadline passes before a prompt
// is observed. The session remains usable afterward; the next exec
// begins with a fresh resync.
var ErrTimeout = errors.New("mshsession: exec timed out waiting for prompt")

// promptRE matches the literal "msh >" prompt line, optionally padded
// with whitespace, at the start of a line.
var promptRE = regexp.MustCompile(`(?m)^[ \t]*msh[ \t]*>[ \t]*$`)

const (
	chunkSize       = 4096
	chunkReadPoll   = 100 * time.Millisecond
	emptyChunkYield = 5 * time.Millisecond
	bootstrapWait   = 5 * time.Second
)

// Port is the minimal serial-port capability the session needs: reading,
// writing, and setting a read deadline per chunk. go.bug.st/serial.Port
// satisfies this directly; tests substitute an in-memory fake.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
}

// Session is the prompt-framed request/response channel against one
// serial device. The zero value is not usable; construct with Open or
// New.
type Session struct {
	mu           sync.Mutex
	port         Port
	closer       func() error
	buf          []byte
	bootstrapped bool
}

// Open opens path at baud 8N1 and returns a Session that lazily
// bootstraps on its first Exec.
func Open(path string, baud int) (*Session, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("mshsession: open %s: %w", path, err)
	}
	return New(port, port.Close), nil
}

// New wraps an already-open Port. closer is invoked by Close; it may be
// nil if the caller owns the port's lifetime.
func New(port Port, closer func() error) *Session {
	return &Session{port: port, closer: closer}
}

// Close releases the underlying port, if a closer was supplied.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Exec runs one request/response exchange: ensures the session is
// bootstrapped, resyncs the buffer, writes cmd, and reads until the next
// prompt or timeout. At most one Exec runs at a time across all callers.
func (s *Session) Exec(cmd string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bootstrapped {
		if err := s.resync(bootstrapWait); err != nil {
			return "", fmt.Errorf("mshsession: bootstrap: %w", err)
		}
		s.bootstrapped = true
	}

	if err := s.resync(bootstrapWait); err != nil {
		return "", err
	}

	if err := s.write(cmd + "\n"); err != nil {
		return "", err
	}

	text, err := s.readUntilPrompt(timeout)
	if err != nil {
		return "", err
	}
	s.buf = s.buf[:0]
	return text, nil
}

// resync writes a bare newline and reads until the next prompt, then
// discards everything accumulated (including the prompt itself) so the
// buffer is empty for the caller's real command.
func (s *Session) resync(timeout time.Duration) error {
	if err := s.write("\n"); err != nil {
		return err
	}
	if _, err := s.readUntilPrompt(timeout); err != nil {
		return err
	}
	s.buf = s.buf[:0]
	return nil
}

func (s *Session) write(line string) error {
	if _, err := s.port.Write([]byte(line)); err != nil {
		return fmt.Errorf("mshsession: write: %w", err)
	}
	return nil
}

// readUntilPrompt repeatedly performs bounded chunk reads, appending the
// raw bytes to the session buffer and re-checking the lossily decoded
// buffer for a prompt match after each chunk. An empty chunk (no bytes, no error) yields control
// briefly rather than treating it as a failure. If the deadline passes
// before a match is found, it fails with ErrTimeout; the accumulated
// buffer is left in place for the next resync to clear.
func (s *Session) readUntilPrompt(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, chunkSize)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}

		readTimeout := remaining
		if readTimeout > chunkReadPoll {
			readTimeout = chunkReadPoll
		}
		if err := s.port.SetReadTimeout(readTimeout); err != nil {
			return "", fmt.Errorf("mshsession: set read timeout: %w", err)
		}

		n, err := s.port.Read(chunk)
		if err != nil {
			return "", fmt.Errorf("mshsession: read: %w", err)
		}
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		} else {
			time.Sleep(emptyChunkYield)
		}

		decoded := decodeLossy(s.buf)
		if loc := promptRE.FindStringIndex(decoded); loc != nil {
			return decoded[:loc[1]], nil
		}
	}
}

// decodeLossy decodes buf as UTF-8, substituting U+FFFD for invalid byte
// sequences, matching the device's "UTF-8 with lossy decoding" contract.
func decodeLossy(buf []byte) string {
	if utf8.Valid(buf) {
		return string(buf)
	}
	var b strings.Builder
	b.Grow(len(buf))
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		b.WriteRune(r)
		buf = buf[size:]
	}
	return b.String()
}
