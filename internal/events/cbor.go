package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/specialistvlad/stagegrid/internal/model"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Status values are written by name through MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("events: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("events: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORSink appends every event to a CBOR sequence (RFC 8742).
type CBORSink struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
}

// NewCBORSink writes events to w.
func NewCBORSink(w io.Writer) *CBORSink {
	return &CBORSink{enc: encMode.NewEncoder(w)}
}

// CreateCBORLog creates (or truncates) the file at path and returns a sink
// writing to it. Close releases the file.
func CreateCBORLog(path string) (*CBORSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}
	s := NewCBORSink(f)
	s.closer = f
	return s, nil
}

// Handle implements Sink.
func (s *CBORSink) Handle(_ context.Context, ev model.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}
	return nil
}

// Close closes the underlying file, if the sink owns one.
func (s *CBORSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// ReadCBORLog decodes every event of a CBOR sequence written by CBORSink.
func ReadCBORLog(r io.Reader) ([]model.ExecutionEvent, error) {
	dec := decMode.NewDecoder(r)
	var out []model.ExecutionEvent
	for {
		var ev model.ExecutionEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("failed to decode event %d: %w", len(out), err)
		}
		out = append(out, ev)
	}
}
