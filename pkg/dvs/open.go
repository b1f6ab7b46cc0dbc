package dvs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// OpenFile reads path into memory, transparently decompressing a
// ".zst" layer, and returns a decoder for the contained stream with
// its parsed header.
func OpenFile(path string) (Decoder, *Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".zst") {
		data, err = decompressZstd(data)
		if err != nil {
			return nil, nil, fmt.Errorf("decompress %v: %w", path, err)
		}
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}

	return NewDecoder(path, data)
}

// NewDecoder selects a decoder for data by the extension of path and
// parses the header. A ".raw" stream is tried as EVT2 first; when that
// fails with ErrIncompatibleVersion or ErrMalformedHeader it is
// retried as EVT3. Any other failure aborts without a retry.
func NewDecoder(path string, data []byte) (Decoder, *Header, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dat":
		dec := NewDATDecoder(bytes.NewReader(data))
		header, err := dec.ReadHeader()
		if err != nil {
			return nil, nil, err
		}
		return dec, header, nil

	case ".raw":
		dec2 := NewEVT2Decoder(bytes.NewReader(data))
		header, err := dec2.ReadHeader()
		if err == nil {
			return dec2, header, nil
		}
		if !errors.Is(err, ErrIncompatibleVersion) && !errors.Is(err, ErrMalformedHeader) {
			return nil, nil, err
		}

		dec3 := NewEVT3Decoder(bytes.NewReader(data))
		header, err = dec3.ReadHeader()
		if err != nil {
			return nil, nil, err
		}
		return dec3, header, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func decompressZstd(data []byte) ([]byte, error) {
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return zr.DecodeAll(data, nil)
}
