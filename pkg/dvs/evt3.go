package dvs

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// EVT3 word type nibbles.
const (
	evt3TypeAddrY    uint8 = 0x0
	evt3TypeAddrX    uint8 = 0x2
	evt3TypeVectBase uint8 = 0x3
	evt3TypeVect12   uint8 = 0x4
	evt3TypeVect8    uint8 = 0x5
	evt3TypeTimeLow  uint8 = 0x6
	evt3TypeTimeHigh uint8 = 0x8
)

// Rollover bookkeeping for the 12-bit TimeHigh payload.
const (
	evt3MaxTimeBase   uint64 = ((1 << 12) - 1) << 12
	evt3TimeLoop      uint64 = evt3MaxTimeBase + (1 << 12)
	evt3LoopThreshold uint64 = 10 << 12
)

// EVT3Decoder decodes 2-byte EVT3 words. Address and time words only
// update current fields, CD events materialize when an AddrX or
// vector word arrives.
type EVT3Decoder struct {
	br *bufio.Reader

	timeBase  uint64
	time      uint64
	timeLoops uint64
	y         uint16
	baseX     uint16
	polarity  uint8
	queue     []Event
	buf       [2]byte
}

// NewEVT3Decoder creates a decoder reading from r.
func NewEVT3Decoder(r io.Reader) *EVT3Decoder {
	return &EVT3Decoder{br: bufio.NewReader(r)}
}

// ReadHeader parses the text header, validates the declared format
// and seeds the time base from the first TimeHigh word and the word
// that follows it, which carries the fine time component.
func (d *EVT3Decoder) ReadHeader() (*Header, error) {
	lines, err := readHeaderLines(d.br, "% end")
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	header := &Header{Lines: lines}
	if err := header.parseDirectives(); err != nil {
		return nil, err
	}
	if err := header.expectFormat("EVT3", 3, 0); err != nil {
		return nil, err
	}

	for {
		typ, payload, err := d.readWord()
		if err != nil {
			return nil, fmt.Errorf("seed time base: %w", err)
		}
		if typ != evt3TypeTimeHigh {
			continue
		}
		_, low, err := d.readWord()
		if err != nil {
			return nil, fmt.Errorf("seed time base: %w", err)
		}
		d.timeBase = uint64(payload)<<12 | uint64(low)
		d.time = d.timeBase
		break
	}
	return header, nil
}

// ReadEvent returns the next sample. Vector words can expand to
// multiple events, which drain from an internal queue before any new
// wire word is consumed.
func (d *EVT3Decoder) ReadEvent() (Sample, error) {
	if len(d.queue) > 0 {
		event := d.queue[0]
		d.queue = d.queue[1:]
		return event, nil
	}

	for {
		typ, payload, err := d.readWord()
		if err != nil {
			return nil, err
		}

		switch typ {
		case evt3TypeAddrY:
			d.y = payload & 0x7FF

		case evt3TypeAddrX:
			return Event{
				Time:     d.time,
				X:        payload & 0x7FF,
				Y:        d.y,
				Polarity: uint8(payload >> 11),
			}, nil

		case evt3TypeVectBase:
			d.baseX = payload & 0x7FF
			d.polarity = uint8(payload >> 11)

		case evt3TypeVect12:
			if event, ok := d.expandVector(payload, 12); ok {
				return event, nil
			}

		case evt3TypeVect8:
			if event, ok := d.expandVector(payload&0xFF, 8); ok {
				return event, nil
			}

		case evt3TypeTimeLow:
			d.time = d.timeBase + uint64(payload)

		case evt3TypeTimeHigh:
			newBase := uint64(payload)<<12 + d.timeLoops*evt3TimeLoop
			if d.timeBase > newBase && d.timeBase-newBase >= evt3MaxTimeBase-evt3LoopThreshold {
				d.timeLoops++
				newBase += evt3TimeLoop
			}
			d.timeBase = newBase
			d.time = newBase
			return TimeSync{Time: newBase}, nil
		}
	}
}

// expandVector queues one event per set mask bit, lowest bit first,
// and advances the base column by width regardless of the mask.
func (d *EVT3Decoder) expandVector(mask, width uint16) (Event, bool) {
	for i := uint16(0); i < width; i++ {
		if mask&(1<<i) != 0 {
			d.queue = append(d.queue, Event{
				Time:     d.time,
				X:        d.baseX + i,
				Y:        d.y,
				Polarity: d.polarity,
			})
		}
	}
	d.baseX += width

	if len(d.queue) == 0 {
		return Event{}, false
	}
	event := d.queue[0]
	d.queue = d.queue[1:]
	return event, true
}

func (d *EVT3Decoder) readWord() (uint8, uint16, error) {
	if _, err := io.ReadFull(d.br, d.buf[:]); err != nil {
		return 0, 0, err
	}
	word := binary.LittleEndian.Uint16(d.buf[:])
	return uint8(word >> 12), word & 0x0FFF, nil
}
