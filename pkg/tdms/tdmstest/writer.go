// Package tdmstest writes TDMS files for tests of code that reads them.
package tdmstest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"sort"
	"time"

	"github.com/bft-labs/tapgdc/pkg/tdms"
)

const (
	leadInSize   = 28
	version      = 4713
	rawIndexNone = 0xFFFFFFFF

	tocMetaData   = 1 << 1
	tocNewObjList = 1 << 2
	tocRawData    = 1 << 3
)

var epoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// Writer writes little endian TDMS segments. Every segment carries a full
// object list; channel data is written as double precision floats.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSegment writes one segment containing the file properties, every
// group and every channel of groups. Writing the same channel in several
// segments appends to its data.
func (w *Writer) WriteSegment(props tdms.Properties, groups []tdms.Group) error {
	var meta, raw bytes.Buffer
	le := binary.LittleEndian

	objects := 1
	for _, g := range groups {
		objects += 1 + len(g.Channels)
	}
	writeU32(&meta, uint32(objects))

	writeStr(&meta, tdms.ObjectPath())
	writeU32(&meta, rawIndexNone)
	if err := writeProperties(&meta, props); err != nil {
		return fmt.Errorf("file properties: %w", err)
	}

	for _, g := range groups {
		writeStr(&meta, tdms.ObjectPath(g.Name))
		writeU32(&meta, rawIndexNone)
		if err := writeProperties(&meta, g.Properties); err != nil {
			return fmt.Errorf("group %s: %w", g.Name, err)
		}
		for _, ch := range g.Channels {
			writeStr(&meta, tdms.ObjectPath(g.Name, ch.Name))
			if len(ch.Data) == 0 {
				writeU32(&meta, rawIndexNone)
			} else {
				writeU32(&meta, 20)
				writeU32(&meta, uint32(tdms.TypeDoubleFloat))
				writeU32(&meta, 1)
				writeU64(&meta, uint64(len(ch.Data)))
				for _, v := range ch.Data {
					writeU64(&raw, math.Float64bits(v))
				}
			}
			if err := writeProperties(&meta, ch.Properties); err != nil {
				return fmt.Errorf("channel %s: %w", tdms.ObjectPath(g.Name, ch.Name), err)
			}
		}
	}

	toc := uint32(tocMetaData | tocNewObjList)
	if raw.Len() > 0 {
		toc |= tocRawData
	}
	lead := make([]byte, leadInSize)
	copy(lead, "TDSm")
	le.PutUint32(lead[4:], toc)
	le.PutUint32(lead[8:], version)
	le.PutUint64(lead[12:], uint64(meta.Len()+raw.Len()))
	le.PutUint64(lead[20:], uint64(meta.Len()))

	for _, b := range [][]byte{lead, meta.Bytes(), raw.Bytes()} {
		if _, err := w.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes f to path as a single segment.
func WriteFile(path string, f *tdms.File) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	groups := make([]tdms.Group, len(f.Groups))
	for i, g := range f.Groups {
		groups[i] = *g
	}
	if err := NewWriter(out).WriteSegment(f.Properties, groups); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeProperties(buf *bytes.Buffer, props tdms.Properties) error {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	writeU32(buf, uint32(len(names)))
	for _, name := range names {
		writeStr(buf, name)
		switch v := props[name].(type) {
		case string:
			writeU32(buf, uint32(tdms.TypeString))
			writeStr(buf, v)
		case float64:
			writeU32(buf, uint32(tdms.TypeDoubleFloat))
			writeU64(buf, math.Float64bits(v))
		case int64:
			writeU32(buf, uint32(tdms.TypeI64))
			writeU64(buf, uint64(v))
		case int:
			writeU32(buf, uint32(tdms.TypeI64))
			writeU64(buf, uint64(int64(v)))
		case int32:
			writeU32(buf, uint32(tdms.TypeI32))
			writeU32(buf, uint32(v))
		case uint64:
			writeU32(buf, uint32(tdms.TypeU64))
			writeU64(buf, v)
		case bool:
			writeU32(buf, uint32(tdms.TypeBoolean))
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case time.Time:
			writeU32(buf, uint32(tdms.TypeTimeStamp))
			writeTime(buf, v)
		default:
			return fmt.Errorf("%w: property %q of type %T", tdms.ErrUnsupported, name, v)
		}
	}
	return nil
}

func writeTime(buf *bytes.Buffer, t time.Time) {
	secs := t.Unix() - epoch.Unix()
	frac, _ := bits.Div64(uint64(t.Nanosecond()), 0, 1e9)
	writeU64(buf, frac)
	writeU64(buf, uint64(secs))
}

func writeU32(buf *bytes.Buffer, v uint32) {
	buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func writeU64(buf *bytes.Buffer, v uint64) {
	buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func writeStr(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}
