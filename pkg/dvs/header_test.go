package dvs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderErrors(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
	}{
		{"evt3Version", "% evt 3.0\n% end\n", ErrIncompatibleVersion},
		{"evt3Format", "% format EVT3;width=1280;height=720;\n% end\n", ErrIncompatibleVersion},
		{"badWidth", "% format EVT2;width=abc;\n% end\n", ErrMalformedHeader},
		{"badOption", "% format EVT2;width\n% end\n", ErrMalformedHeader},
		{"badGeometry", "% geometry 1280\n% end\n", ErrMalformedHeader},
		{"badGeometryWidth", "% geometry abcx720\n% end\n", ErrMalformedHeader},
		{"badVersion", "% evt two\n% end\n", ErrMalformedHeader},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewEVT2Decoder(strings.NewReader(tc.header))
			_, err := dec.ReadHeader()
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestHeaderNoEndLine(t *testing.T) {
	// Event words directly after the last header line. The lookahead
	// byte ends the scan and is offered back to the word reader.
	data := []byte("% evt 2.0\n")
	data = append(data,
		0x02, 0x00, 0x00, 0x80, // TimeHigh payload=2, seeds base=128.
		0x0a, 0x28, 0xc0, 0x10, // CD-on x=5 y=10 low=3.
	)

	dec := NewEVT2Decoder(bytes.NewReader(data))
	header, err := dec.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, []string{"% evt 2.0"}, header.Lines)

	sample, err := dec.ReadEvent()
	require.NoError(t, err)
	require.Equal(t, Event{Time: 131, X: 5, Y: 10, Polarity: 1}, sample)
}

func TestHeaderUnknownOptionsIgnored(t *testing.T) {
	dec := NewEVT2Decoder(bytes.NewReader(append(
		[]byte("% format EVT2;width=640;height=480;foo=9;\n% end\n"),
		0x00, 0x00, 0x00, 0x80, // TimeHigh payload=0.
	)))

	header, err := dec.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, 640, header.Width)
	require.Equal(t, 480, header.Height)
}

func TestMarshalHeader(t *testing.T) {
	actual := marshalHeader(&Header{Width: 1280, Height: 720}, "EVT2", 2, 0)
	expected := "% evt 2.0\n" +
		"% format EVT2;width=1280;height=720;\n" +
		"% geometry 1280x720\n" +
		"% end\n"
	require.Equal(t, expected, string(actual))

	// Unknown geometry leaves the size options out.
	actual = marshalHeader(&Header{}, "EVT2", 2, 0)
	require.Equal(t, "% evt 2.0\n% format EVT2\n% end\n", string(actual))
}
