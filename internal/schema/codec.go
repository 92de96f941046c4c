package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DecodeError is returned when a stored document cannot be parsed.
// Callers treat it as if the document were absent.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode ledger document: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Encode serializes the snapshot as the canonical document.
//
// lastUpdated is set to now on the encoded copy; the caller's value is
// ignored so every write advances the document clock. Output is
// deterministic for a given snapshot and now.
func Encode(s *Snapshot, now time.Time) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot encode nil snapshot")
	}

	out := *s
	out.normalize()
	out.LastUpdated = now.UTC()

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored document. Missing collections decode as empty.
func Decode(data []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Err: errors.New("empty document")}
	}
	if trimmed[0] != '{' {
		return nil, &DecodeError{Err: errors.New("document is not a JSON object")}
	}

	var s Snapshot
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, &DecodeError{Err: err}
	}
	s.normalize()
	return &s, nil
}
