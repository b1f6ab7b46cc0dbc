package dvs

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// EVT2 word type nibbles.
const (
	evt2TypeCDOff    uint8 = 0x0
	evt2TypeCDOn     uint8 = 0x1
	evt2TypeTimeHigh uint8 = 0x8
)

// Rollover bookkeeping for the 28-bit TimeHigh payload.
const (
	evt2MaxTimeBase   uint64 = ((1 << 28) - 1) << 6
	evt2TimeLoop      uint64 = evt2MaxTimeBase + (1 << 6)
	evt2LoopThreshold uint64 = 10 << 6
)

// EVT2Decoder decodes 4-byte EVT2 words.
type EVT2Decoder struct {
	br *bufio.Reader

	timeBase  uint64
	timeLoops uint64
	buf       [4]byte
}

// NewEVT2Decoder creates a decoder reading from r.
func NewEVT2Decoder(r io.Reader) *EVT2Decoder {
	return &EVT2Decoder{br: bufio.NewReader(r)}
}

// ReadHeader parses the text header, validates the declared format
// and consumes words up to and including the first TimeHigh to seed
// the time base. The seeding TimeHigh does not produce a marker.
func (d *EVT2Decoder) ReadHeader() (*Header, error) {
	lines, err := readHeaderLines(d.br, "% end")
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	header := &Header{Lines: lines}
	if err := header.parseDirectives(); err != nil {
		return nil, err
	}
	if err := header.expectFormat("EVT2", 2, 0); err != nil {
		return nil, err
	}

	for {
		typ, payload, err := d.readWord()
		if err != nil {
			return nil, fmt.Errorf("seed time base: %w", err)
		}
		if typ == evt2TypeTimeHigh {
			d.timeBase = uint64(payload) << 6
			break
		}
	}
	return header, nil
}

// ReadEvent returns the next sample. TimeHigh words update the time
// base and surface as TimeSync markers. Trigger and unknown words are
// skipped.
func (d *EVT2Decoder) ReadEvent() (Sample, error) {
	for {
		typ, payload, err := d.readWord()
		if err != nil {
			return nil, err
		}

		switch typ {
		case evt2TypeCDOff, evt2TypeCDOn:
			return Event{
				Time:     d.timeBase + uint64(payload>>22),
				X:        uint16((payload >> 11) & 0x7FF),
				Y:        uint16(payload & 0x7FF),
				Polarity: typ,
			}, nil

		case evt2TypeTimeHigh:
			newBase := uint64(payload)<<6 + d.timeLoops*evt2TimeLoop
			if d.timeBase > newBase && d.timeBase-newBase >= evt2MaxTimeBase-evt2LoopThreshold {
				d.timeLoops++
				newBase += evt2TimeLoop
			}
			d.timeBase = newBase
			return TimeSync{Time: newBase}, nil
		}
	}
}

func (d *EVT2Decoder) readWord() (uint8, uint32, error) {
	if _, err := io.ReadFull(d.br, d.buf[:]); err != nil {
		return 0, 0, err
	}
	word := binary.LittleEndian.Uint32(d.buf[:])
	return uint8(word >> 28), word & 0x0FFFFFFF, nil
}

// EVT2Encoder encodes samples as 4-byte EVT2 words.
type EVT2Encoder struct {
	w io.Writer

	lastTimeHigh    uint64
	timeHighWritten bool
	buf             [4]byte
}

// NewEVT2Encoder creates an encoder writing to w.
func NewEVT2Encoder(w io.Writer) *EVT2Encoder {
	return &EVT2Encoder{w: w}
}

// WriteHeader writes a canonical EVT2 header derived from the parsed
// geometry. Source header lines are not copied.
func (e *EVT2Encoder) WriteHeader(header *Header) error {
	if header == nil {
		header = &Header{}
	}
	_, err := e.w.Write(marshalHeader(header, "EVT2", 2, 0))
	return err
}

// WriteEvent writes sample as wire words. TimeSync markers re-emit as
// TimeHigh words. Before a CD word the time base advances one TimeHigh
// word per 64 microsecond step until it reaches the event's masked
// timestamp.
func (e *EVT2Encoder) WriteEvent(sample Sample) error {
	switch s := sample.(type) {
	case TimeSync:
		if err := e.writeWord(evt2TypeTimeHigh, uint32(s.Time>>6)); err != nil {
			return err
		}
		e.lastTimeHigh = s.Time &^ 0x3F
		e.timeHighWritten = true
		return nil

	case Event:
		masked := s.Time &^ 0x3F
		if !e.timeHighWritten {
			e.lastTimeHigh = masked
			e.timeHighWritten = true
			if err := e.writeWord(evt2TypeTimeHigh, uint32(masked>>6)); err != nil {
				return err
			}
		} else {
			for e.lastTimeHigh < masked {
				e.lastTimeHigh += 0x40
				if err := e.writeWord(evt2TypeTimeHigh, uint32(e.lastTimeHigh>>6)); err != nil {
					return err
				}
			}
		}

		typ := evt2TypeCDOff
		if s.Polarity == 1 {
			typ = evt2TypeCDOn
		}
		payload := uint32(s.Time&0x3F)<<22 |
			uint32(s.X&0x7FF)<<11 |
			uint32(s.Y&0x7FF)
		return e.writeWord(typ, payload)

	default:
		return fmt.Errorf("unexpected sample type: %T", sample)
	}
}

func (e *EVT2Encoder) writeWord(typ uint8, payload uint32) error {
	word := uint32(typ)<<28 | payload&0x0FFFFFFF
	binary.LittleEndian.PutUint32(e.buf[:], word)
	_, err := e.w.Write(e.buf[:])
	return err
}
