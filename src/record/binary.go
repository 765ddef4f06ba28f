package record

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// BinaryCodec stores a record field by field:
//
//	[playTime fixed64][created fixed64][modified fixed64][version fixed32]
//	[count fixed32] then count x (id, group, payload)
//
// Times are unix nanoseconds (0 for unset), numbers are little endian and
// strings carry a varint length prefix.
type BinaryCodec struct{}

func (BinaryCodec) Encode(r *Record) ([]byte, error) {
	entries := r.Entries()
	if uint64(len(entries)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many entries to encode: %d", len(entries))
	}

	buf := make([]byte, 0, 32+len(entries)*32)
	buf = protowire.AppendFixed64(buf, uint64(r.Meta.PlayTime))
	buf = protowire.AppendFixed64(buf, uint64(unixNano(r.Meta.Created)))
	buf = protowire.AppendFixed64(buf, uint64(unixNano(r.Meta.Modified)))
	buf = protowire.AppendFixed32(buf, math.Float32bits(r.Meta.Version))
	buf = protowire.AppendFixed32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = protowire.AppendString(buf, e.ID)
		buf = protowire.AppendString(buf, e.Group)
		buf = protowire.AppendString(buf, e.Payload)
	}
	return buf, nil
}

func (BinaryCodec) Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	d := decoder{buf: data}
	playTime := d.fixed64("play time")
	created := d.fixed64("creation time")
	modified := d.fixed64("modification time")
	version := d.fixed32("version")
	count := d.fixed32("entry count")
	if d.err != nil {
		return nil, d.err
	}

	// every entry needs at least three length bytes
	if uint64(count)*3 > uint64(len(d.buf)) {
		return nil, fmt.Errorf("entry count %d exceeds remaining %d bytes", count, len(d.buf))
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e := Entry{
			ID:      d.str("id"),
			Group:   d.str("group"),
			Payload: d.str("payload"),
		}
		if d.err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, d.err)
		}
		entries = append(entries, e)
	}

	meta := Meta{
		Version:  math.Float32frombits(version),
		Created:  fromUnixNano(int64(created)),
		Modified: fromUnixNano(int64(modified)),
		PlayTime: time.Duration(playTime),
	}
	return FromEntries(meta, entries), nil
}

// decoder consumes protowire primitives and latches the first error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fixed64(field string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed64(d.buf)
	if n < 0 {
		d.err = fmt.Errorf("failed to read %s: %w", field, protowire.ParseError(n))
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) fixed32(field string) uint32 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed32(d.buf)
	if n < 0 {
		d.err = fmt.Errorf("failed to read %s: %w", field, protowire.ParseError(n))
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) str(field string) string {
	if d.err != nil {
		return ""
	}
	v, n := protowire.ConsumeString(d.buf)
	if n < 0 {
		d.err = fmt.Errorf("failed to read %s: %w", field, protowire.ParseError(n))
		return ""
	}
	d.buf = d.buf[n:]
	return v
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
