package dvs

import (
	"errors"
	"io"
)

// Event a single change detection event.
type Event struct {
	Time     uint64 // Microseconds.
	X        uint16
	Y        uint16
	Polarity uint8
}

// TimeSync a clock base update marker. Markers are not pixel events
// and must survive every stream transform.
type TimeSync struct {
	Time uint64 // Microseconds.
}

// Sample one element of a decoded stream, either an Event or a TimeSync.
type Sample interface {
	// Timestamp sample time in microseconds.
	Timestamp() uint64

	sample()
}

// Timestamp implements Sample.
func (e Event) Timestamp() uint64 { return e.Time }

// Timestamp implements Sample.
func (m TimeSync) Timestamp() uint64 { return m.Time }

func (Event) sample()    {}
func (TimeSync) sample() {}

// Decoder reads a raw event stream.
type Decoder interface {
	// ReadHeader parses the text header and positions the stream at
	// the first event word.
	ReadHeader() (*Header, error)

	// ReadEvent returns the next sample. io.EOF means end of stream.
	ReadEvent() (Sample, error)
}

// Encoder writes a raw event stream.
type Encoder interface {
	WriteHeader(header *Header) error
	WriteEvent(sample Sample) error
}

// ErrUnsupportedFormat unknown file extension.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrIncompatibleVersion header declares a format or version the
// decoder does not handle.
var ErrIncompatibleVersion = errors.New("incompatible version")

// ErrMalformedHeader header directive could not be parsed.
var ErrMalformedHeader = errors.New("malformed header")

// ReadAll reads samples until the end of the stream. A truncated
// trailing word counts as end of stream.
func ReadAll(dec Decoder) ([]Sample, error) {
	var samples []Sample
	for {
		sample, err := dec.ReadEvent()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
}

// Events filters samples down to pixel events.
func Events(samples []Sample) []Event {
	var events []Event
	for _, sample := range samples {
		if event, ok := sample.(Event); ok {
			events = append(events, event)
		}
	}
	return events
}
