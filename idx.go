package mnists

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// idxMagicSize is the fixed IDX prefix: two zero bytes, a type code and the
// dimension count. Each dimension size follows as a big-endian uint32.
const idxMagicSize = 4

// DecodeIDX decodes a complete IDX file into a Tensor. The returned tensor
// shares data's backing memory.
//
// Errors wrap ErrFormat: nonzero reserved bytes, an unknown type code, a
// truncated header, or a payload whose size differs from the one implied by
// the declared dimensions. A payload is never truncated or padded to fit.
func DecodeIDX(data []byte) (*Tensor, error) {
	kind, dims, n, err := parseIDXHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[n:]

	want := int64(kind.Size())
	for _, d := range dims {
		if d != 0 && want > math.MaxInt64/int64(d) {
			return nil, fmt.Errorf("%w: declared size overflows", ErrFormat)
		}
		want *= int64(d)
	}
	if int64(len(payload)) != want {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, have %d", ErrFormat, want, len(payload))
	}

	return &Tensor{kind: kind, dims: dims, data: payload}, nil
}

// ReadIDXHeader reads just the header from the start of an IDX stream and
// returns the element kind and dimension sizes. It consumes exactly the
// header bytes, leaving r positioned at the payload. Errors wrap ErrFormat,
// except for underlying read failures, which are returned as-is.
func ReadIDXHeader(r io.Reader) (Kind, []int, error) {
	magic := make([]byte, idxMagicSize)
	if _, err := io.ReadFull(r, magic); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("%w: truncated header", ErrFormat)
		}
		return 0, nil, err
	}
	buf := make([]byte, idxMagicSize+4*int(magic[3]))
	copy(buf, magic)
	if _, err := io.ReadFull(r, buf[idxMagicSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("%w: truncated header", ErrFormat)
		}
		return 0, nil, err
	}
	kind, dims, _, err := parseIDXHeader(buf)
	return kind, dims, err
}

// parseIDXHeader validates the magic prefix and returns the element kind,
// the dimension sizes and the header length in bytes.
func parseIDXHeader(data []byte) (Kind, []int, int, error) {
	if len(data) < idxMagicSize {
		return 0, nil, 0, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	if data[0] != 0 || data[1] != 0 {
		return 0, nil, 0, fmt.Errorf("%w: reserved bytes are %#02x %#02x, want zero", ErrFormat, data[0], data[1])
	}
	kind := Kind(data[2])
	if kind.Size() == 0 {
		return 0, nil, 0, fmt.Errorf("%w: unknown type code %#02x", ErrFormat, data[2])
	}
	rank := int(data[3])
	n := idxMagicSize + 4*rank
	if len(data) < n {
		return 0, nil, 0, fmt.Errorf("%w: header declares %d dimensions, data too short", ErrFormat, rank)
	}
	dims := make([]int, rank)
	for i := range dims {
		dims[i] = int(binary.BigEndian.Uint32(data[idxMagicSize+4*i:]))
	}
	return kind, dims, n, nil
}
