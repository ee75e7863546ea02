package voicepool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// AudioStream wraps a provider audio stream with usage commit on close.
type AudioStream struct {
	inner     io.ReadCloser
	lease     *Lease
	meter     Meter
	provider  string
	routing   Routing
	startTime time.Time
	bytes     int64
	closed    bool
	streamErr error // first error encountered during streaming
}

// Read reads audio from the provider.
func (s *AudioStream) Read(p []byte) (int, error) {
	n, err := s.inner.Read(p)
	s.bytes += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && s.streamErr == nil {
		s.streamErr = err
	}
	return n, err
}

// Routing reports which credential serves the stream.
func (s *AudioStream) Routing() Routing { return s.routing }

// Close releases the stream and records usage. The provider bills a request
// once it is accepted, so usage is recorded even if reading failed.
func (s *AudioStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.inner.Close()
	commitErr := s.lease.Commit(context.Background())

	resultErr := s.streamErr
	if commitErr != nil && resultErr == nil {
		resultErr = fmt.Errorf("record usage failed: %w", commitErr)
	}

	s.meter.OnResult(ResultEvent{
		Provider:     s.provider,
		CredentialID: s.routing.CredentialID,
		Label:        s.routing.Label,
		Chars:        s.routing.Chars,
		Attempt:      s.routing.Attempts,
		Success:      resultErr == nil,
		Duration:     time.Since(s.startTime),
		Error:        resultErr,
	})

	if err != nil {
		return err
	}
	return commitErr
}
