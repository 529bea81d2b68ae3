package tdms

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	leadInSize = 28
	version    = 4713

	tocMetaData        = 1 << 1
	tocNewObjList      = 1 << 2
	tocRawData         = 1 << 3
	tocInterleavedData = 1 << 5
	tocBigEndian       = 1 << 6
	tocDAQmxRawData    = 1 << 7

	rawIndexNone         = 0xFFFFFFFF
	rawIndexSame         = 0x00000000
	rawIndexDAQmxFormat  = 0x00001269
	rawIndexDAQmxDigital = 0x0000126A

	// incompleteSegment marks a segment whose writer did not finish; it
	// extends to the end of the file.
	incompleteSegment = 0xFFFFFFFFFFFFFFFF
)

// ReadFile reads and decodes the TDMS file at path.
func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Read decodes a TDMS stream.
func Read(r io.Reader) (*File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Decode decodes a complete TDMS file held in memory.
func Decode(data []byte) (*File, error) {
	d := newDecoder()
	off := 0
	for off < len(data) {
		n, err := d.segment(data[off:])
		if err != nil {
			return nil, fmt.Errorf("segment at offset %d: %w", off, err)
		}
		off += n
	}
	return d.file, nil
}

// rawIndex describes the raw data of one object within a segment.
type rawIndex struct {
	typ   DataType
	count uint64
	// bytes is the size of the object's data in one chunk.
	bytes uint64
}

type segObject struct {
	path  string
	ch    *Channel
	index *rawIndex
}

type decoder struct {
	file     *File
	groups   map[string]*Group
	channels map[string]*Channel
	previous map[string]rawIndex
	active   []*segObject
}

func newDecoder() *decoder {
	return &decoder{
		file:     &File{Properties: Properties{}},
		groups:   make(map[string]*Group),
		channels: make(map[string]*Channel),
		previous: make(map[string]rawIndex),
	}
}

// segment decodes one segment from the start of b and returns its length.
func (d *decoder) segment(b []byte) (int, error) {
	if len(b) < leadInSize {
		return 0, ErrTruncated
	}
	if string(b[:4]) != "TDSm" {
		return 0, ErrInvalidTag
	}
	toc := binary.LittleEndian.Uint32(b[4:8])
	var order binary.ByteOrder = binary.LittleEndian
	if toc&tocBigEndian != 0 {
		order = binary.BigEndian
	}
	if toc&tocDAQmxRawData != 0 {
		return 0, fmt.Errorf("%w: DAQmx raw data", ErrUnsupported)
	}

	nextOff := order.Uint64(b[12:20])
	rawOff := order.Uint64(b[20:28])

	body := b[leadInSize:]
	end := uint64(len(body))
	if nextOff != incompleteSegment && nextOff < end {
		end = nextOff
	}
	if rawOff > end {
		return 0, ErrTruncated
	}

	if toc&tocMetaData != 0 {
		c := &cursor{b: body[:rawOff], order: order}
		if err := d.metadata(c, toc&tocNewObjList != 0); err != nil {
			return 0, err
		}
	}
	if toc&tocRawData != 0 {
		if err := d.rawData(body[rawOff:end], order, toc&tocInterleavedData != 0); err != nil {
			return 0, err
		}
	}
	return leadInSize + int(end), nil
}

func (d *decoder) metadata(c *cursor, newList bool) error {
	if newList {
		d.active = d.active[:0]
	}
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		path, err := c.str()
		if err != nil {
			return err
		}
		names, err := SplitPath(path)
		if err != nil {
			return err
		}
		index, err := d.readIndex(c, path)
		if err != nil {
			return fmt.Errorf("object %s: %w", path, err)
		}
		props, err := d.object(names)
		if err != nil {
			return err
		}
		if err := readProperties(c, props); err != nil {
			return fmt.Errorf("object %s: %w", path, err)
		}

		ch := d.channels[path]
		if index != nil {
			if ch == nil {
				return fmt.Errorf("%w: raw data on non-channel object %s", ErrUnsupported, path)
			}
			ch.Type = index.typ
			d.previous[path] = *index
		}
		d.activate(path, ch, index)
	}
	return nil
}

// activate adds the object to the segment object list or updates its index.
func (d *decoder) activate(path string, ch *Channel, index *rawIndex) {
	for _, o := range d.active {
		if o.path == path {
			o.index = index
			return
		}
	}
	d.active = append(d.active, &segObject{path: path, ch: ch, index: index})
}

func (d *decoder) readIndex(c *cursor, path string) (*rawIndex, error) {
	header, err := c.u32()
	if err != nil {
		return nil, err
	}
	switch header {
	case rawIndexNone:
		return nil, nil
	case rawIndexSame:
		prev, ok := d.previous[path]
		if !ok {
			return nil, fmt.Errorf("%w: index reuse without a previous index", ErrUnsupported)
		}
		return &prev, nil
	case rawIndexDAQmxFormat, rawIndexDAQmxDigital:
		return nil, fmt.Errorf("%w: DAQmx raw data index", ErrUnsupported)
	}

	typ, err := c.u32()
	if err != nil {
		return nil, err
	}
	dim, err := c.u32()
	if err != nil {
		return nil, err
	}
	if dim != 1 {
		return nil, fmt.Errorf("%w: array dimension %d", ErrUnsupported, dim)
	}
	count, err := c.u64()
	if err != nil {
		return nil, err
	}
	idx := &rawIndex{typ: DataType(typ), count: count}
	if idx.typ == TypeString {
		if idx.bytes, err = c.u64(); err != nil {
			return nil, err
		}
		// Every string takes at least its 4 byte offset.
		if count > idx.bytes/4 || idx.bytes > math.MaxInt {
			return nil, fmt.Errorf("%w: %d strings in %d bytes", ErrTruncated, count, idx.bytes)
		}
		return idx, nil
	}
	size := idx.typ.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: channel type %s", ErrUnsupported, idx.typ)
	}
	if count > uint64(math.MaxInt/size) {
		return nil, fmt.Errorf("%w: %d values of %s", ErrTruncated, count, idx.typ)
	}
	idx.bytes = count * uint64(size)
	return idx, nil
}

// object registers the object named by names and returns its properties.
func (d *decoder) object(names []string) (Properties, error) {
	switch len(names) {
	case 0:
		return d.file.Properties, nil
	case 1:
		return d.group(names[0]).Properties, nil
	default:
		g := d.group(names[0])
		path := ObjectPath(names...)
		ch, ok := d.channels[path]
		if !ok {
			ch = &Channel{Group: names[0], Name: names[1], Properties: Properties{}}
			d.channels[path] = ch
			g.Channels = append(g.Channels, ch)
		}
		return ch.Properties, nil
	}
}

func (d *decoder) group(name string) *Group {
	g, ok := d.groups[name]
	if !ok {
		g = &Group{Name: name, Properties: Properties{}}
		d.groups[name] = g
		d.file.Groups = append(d.file.Groups, g)
	}
	return g
}

func (d *decoder) rawData(b []byte, order binary.ByteOrder, interleaved bool) error {
	var objs []*segObject
	var chunk uint64
	for _, o := range d.active {
		if o.index == nil || o.index.count == 0 {
			continue
		}
		if o.index.bytes > uint64(len(b))-chunk {
			return fmt.Errorf("channel %s: %w: chunk of %d bytes exceeds raw data", o.path, ErrTruncated, o.index.bytes)
		}
		objs = append(objs, o)
		chunk += o.index.bytes
	}
	if chunk == 0 {
		return nil
	}
	chunks := uint64(len(b)) / chunk

	if interleaved {
		return d.interleaved(b[:chunks*chunk], objs, order)
	}
	off := uint64(0)
	for i := uint64(0); i < chunks; i++ {
		for _, o := range objs {
			part := b[off : off+o.index.bytes]
			vals, err := decodeValues(o.index.typ, part, int(o.index.count), order)
			if err != nil {
				return fmt.Errorf("channel %s: %w", o.path, err)
			}
			o.ch.Data = append(o.ch.Data, vals...)
			off += o.index.bytes
		}
	}
	return nil
}

func (d *decoder) interleaved(b []byte, objs []*segObject, order binary.ByteOrder) error {
	var stride int
	for _, o := range objs {
		if o.index.typ == TypeString {
			return fmt.Errorf("%w: interleaved string channel %s", ErrUnsupported, o.path)
		}
		stride += o.index.typ.Size()
	}
	for off := 0; off+stride <= len(b); {
		for _, o := range objs {
			size := o.index.typ.Size()
			v, err := decodeValue(o.index.typ, b[off:off+size], order)
			if err != nil {
				return err
			}
			o.ch.Data = append(o.ch.Data, v)
			off += size
		}
	}
	return nil
}

func decodeValues(typ DataType, b []byte, n int, order binary.ByteOrder) ([]float64, error) {
	if typ == TypeString {
		return decodeStrings(b, n, order)
	}
	size := typ.Size()
	out := make([]float64, n)
	for i := range out {
		v, err := decodeValue(typ, b[i*size:(i+1)*size], order)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// decodeStrings decodes a string chunk: n end offsets followed by the
// concatenated values. Non-numeric strings become NaN.
func decodeStrings(b []byte, n int, order binary.ByteOrder) ([]float64, error) {
	if n < 0 || n > len(b)/4 {
		return nil, ErrTruncated
	}
	data := b[4*n:]
	out := make([]float64, n)
	start := uint32(0)
	for i := 0; i < n; i++ {
		end := order.Uint32(b[4*i:])
		if end < start || int(end) > len(data) {
			return nil, ErrTruncated
		}
		s := strings.TrimSpace(string(data[start:end]))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			v = math.NaN()
		}
		out[i] = v
		start = end
	}
	return out, nil
}

func decodeValue(typ DataType, b []byte, order binary.ByteOrder) (float64, error) {
	switch typ {
	case TypeI8:
		return float64(int8(b[0])), nil
	case TypeU8:
		return float64(b[0]), nil
	case TypeBoolean:
		if b[0] != 0 {
			return 1, nil
		}
		return 0, nil
	case TypeI16:
		return float64(int16(order.Uint16(b))), nil
	case TypeU16:
		return float64(order.Uint16(b)), nil
	case TypeI32:
		return float64(int32(order.Uint32(b))), nil
	case TypeU32:
		return float64(order.Uint32(b)), nil
	case TypeI64:
		return float64(int64(order.Uint64(b))), nil
	case TypeU64:
		return float64(order.Uint64(b)), nil
	case TypeSingleFloat, TypeSingleFloatWithUnit:
		return float64(math.Float32frombits(order.Uint32(b))), nil
	case TypeDoubleFloat, TypeDoubleFloatWithUnit:
		return math.Float64frombits(order.Uint64(b)), nil
	case TypeTimeStamp:
		t := decodeTime(b, order)
		return float64(t.UnixNano()) / 1e9, nil
	default:
		return 0, fmt.Errorf("%w: channel type %s", ErrUnsupported, typ)
	}
}

func readProperties(c *cursor, props Properties) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := c.str()
		if err != nil {
			return err
		}
		typ, err := c.u32()
		if err != nil {
			return err
		}
		v, err := readProperty(c, DataType(typ))
		if err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		props[name] = v
	}
	return nil
}

func readProperty(c *cursor, typ DataType) (any, error) {
	if typ == TypeString {
		return c.str()
	}
	size := typ.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: property type %s", ErrUnsupported, typ)
	}
	b, err := c.take(size)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeI8:
		return int64(int8(b[0])), nil
	case TypeI16:
		return int64(int16(c.order.Uint16(b))), nil
	case TypeI32:
		return int64(int32(c.order.Uint32(b))), nil
	case TypeI64:
		return int64(c.order.Uint64(b)), nil
	case TypeU8:
		return uint64(b[0]), nil
	case TypeU16:
		return uint64(c.order.Uint16(b)), nil
	case TypeU32:
		return uint64(c.order.Uint32(b)), nil
	case TypeU64:
		return c.order.Uint64(b), nil
	case TypeBoolean:
		return b[0] != 0, nil
	case TypeTimeStamp:
		return decodeTime(b, c.order), nil
	default:
		return decodeValue(typ, b, c.order)
	}
}

// decodeTime decodes a 16 byte timestamp: seconds since 1904-01-01 UTC and
// positive fractions of 2^-64 seconds. Little endian files store the
// fractions first.
func decodeTime(b []byte, order binary.ByteOrder) time.Time {
	var secs int64
	var frac uint64
	if order == binary.BigEndian {
		secs = int64(order.Uint64(b[0:8]))
		frac = order.Uint64(b[8:16])
	} else {
		frac = order.Uint64(b[0:8])
		secs = int64(order.Uint64(b[8:16]))
	}
	ns, lo := bits.Mul64(frac, 1e9)
	if lo >= 1<<63 {
		ns++
	}
	return time.Unix(tdmsEpoch.Unix()+secs, int64(ns)).UTC()
}

type cursor struct {
	b     []byte
	pos   int
	order binary.ByteOrder
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.b) {
		return nil, ErrTruncated
	}
	out := c.b[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}

func (c *cursor) str() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
