package record

import (
	"errors"
	"fmt"
	"strings"
)

// Encoding selects how a record is laid out on disk.
type Encoding int

const (
	EncodingText Encoding = iota
	EncodingBinary
)

var ErrEmptyFile = errors.New("record file is empty")

func (e Encoding) String() string {
	switch e {
	case EncodingText:
		return "text"
	case EncodingBinary:
		return "binary"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

func (e Encoding) MarshalText() ([]byte, error) {
	switch e {
	case EncodingText, EncodingBinary:
		return []byte(e.String()), nil
	}
	return nil, fmt.Errorf("unknown encoding %d", int(e))
}

func (e *Encoding) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "text", "json":
		*e = EncodingText
	case "binary", "bin":
		*e = EncodingBinary
	default:
		return fmt.Errorf("unknown encoding %q", string(text))
	}
	return nil
}

// Codec turns a record into bytes and back. Decode must fail on anything it
// cannot structurally parse; payload contents are never inspected.
type Codec interface {
	Encode(r *Record) ([]byte, error)
	Decode(data []byte) (*Record, error)
}

// CodecFor returns the codec for enc, falling back to text.
func CodecFor(enc Encoding) Codec {
	if enc == EncodingBinary {
		return BinaryCodec{}
	}
	return TextCodec{}
}
