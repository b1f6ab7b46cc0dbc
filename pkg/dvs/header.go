package dvs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header parsed text header of a raw stream.
type Header struct {
	Lines  []string // Raw lines including the '%' prefix.
	Format string
	Width  int
	Height int

	EvtMajor int
	EvtMinor int
}

// readHeaderLines consumes '%'-prefixed lines. The end of the header
// is found by one byte of lookahead which is unread when it does not
// start a header line. endLine stops the scan early so event words
// that happen to begin with '%' are not consumed as text.
func readHeaderLines(br *bufio.Reader, endLine string) ([]string, error) {
	var lines []string
	for {
		first, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return lines, nil
		} else if err != nil {
			return nil, err
		}
		if first != '%' {
			if err := br.UnreadByte(); err != nil {
				return nil, err
			}
			return lines, nil
		}

		rest, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line := "%" + strings.TrimSuffix(rest, "\n")
		lines = append(lines, line)
		if endLine != "" && line == endLine {
			return lines, nil
		}
	}
}

// cutDirective strips "% <name> " from a header line.
func cutDirective(line, name string) (string, bool) {
	value, ok := strings.CutPrefix(line, "% "+name+" ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// parseDirectives extracts format, geometry and version directives.
func (h *Header) parseDirectives() error {
	for _, line := range h.Lines {
		if value, ok := cutDirective(line, "format"); ok {
			if err := h.parseFormat(value); err != nil {
				return err
			}
		} else if value, ok := cutDirective(line, "geometry"); ok {
			if err := h.parseGeometry(value); err != nil {
				return err
			}
		} else if value, ok := cutDirective(line, "evt"); ok {
			if err := h.parseVersion(value); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseFormat parses "<NAME>;width=W;height=H;".
func (h *Header) parseFormat(value string) error {
	parts := strings.Split(value, ";")
	h.Format = strings.TrimSpace(parts[0])

	for _, option := range parts[1:] {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		name, val, ok := strings.Cut(option, "=")
		if !ok {
			return fmt.Errorf("%w: format option %q", ErrMalformedHeader, option)
		}

		var err error
		switch name {
		case "width":
			h.Width, err = strconv.Atoi(val)
		case "height":
			h.Height, err = strconv.Atoi(val)
		}
		if err != nil {
			return fmt.Errorf("%w: format option %q: %v", ErrMalformedHeader, option, err)
		}
	}
	return nil
}

// parseGeometry parses "WxH".
func (h *Header) parseGeometry(value string) error {
	w, ht, ok := strings.Cut(value, "x")
	if !ok {
		return fmt.Errorf("%w: geometry %q", ErrMalformedHeader, value)
	}

	var err error
	h.Width, err = strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return fmt.Errorf("%w: geometry %q: %v", ErrMalformedHeader, value, err)
	}
	h.Height, err = strconv.Atoi(strings.TrimSpace(ht))
	if err != nil {
		return fmt.Errorf("%w: geometry %q: %v", ErrMalformedHeader, value, err)
	}
	return nil
}

// parseVersion parses "<major>.<minor>".
func (h *Header) parseVersion(value string) error {
	major, minor, ok := strings.Cut(value, ".")
	if !ok {
		return fmt.Errorf("%w: evt version %q", ErrMalformedHeader, value)
	}

	var err error
	h.EvtMajor, err = strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return fmt.Errorf("%w: evt version %q: %v", ErrMalformedHeader, value, err)
	}
	h.EvtMinor, err = strconv.Atoi(strings.TrimSpace(minor))
	if err != nil {
		return fmt.Errorf("%w: evt version %q: %v", ErrMalformedHeader, value, err)
	}
	return nil
}

// expectFormat validates the declared format name and evt version.
// Absent directives pass.
func (h *Header) expectFormat(name string, major, minor int) error {
	if h.Format != "" && h.Format != name {
		return fmt.Errorf("%w: declared format %q", ErrIncompatibleVersion, h.Format)
	}
	versionSet := h.EvtMajor != 0 || h.EvtMinor != 0
	if versionSet && (h.EvtMajor != major || h.EvtMinor != minor) {
		return fmt.Errorf("%w: evt %d.%d", ErrIncompatibleVersion, h.EvtMajor, h.EvtMinor)
	}
	return nil
}

// marshalHeader renders the canonical header for an output stream.
func marshalHeader(h *Header, format string, major, minor int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%% evt %d.%d\n", major, minor)
	if h.Width > 0 && h.Height > 0 {
		fmt.Fprintf(&b, "%% format %s;width=%d;height=%d;\n", format, h.Width, h.Height)
		fmt.Fprintf(&b, "%% geometry %dx%d\n", h.Width, h.Height)
	} else {
		fmt.Fprintf(&b, "%% format %s\n", format)
	}
	b.WriteString("% end\n")
	return []byte(b.String())
}
