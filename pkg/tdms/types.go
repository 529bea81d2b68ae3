package tdms

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTag is returned when a segment does not start with "TDSm".
	ErrInvalidTag = errors.New("tdms: invalid segment tag")

	// ErrTruncated is returned when the file ends inside a structure.
	ErrTruncated = errors.New("tdms: truncated file")

	// ErrUnsupported is returned for data layouts this package cannot decode.
	ErrUnsupported = errors.New("tdms: unsupported data")

	// ErrBadPath is returned for object paths that do not parse.
	ErrBadPath = errors.New("tdms: bad object path")
)

// DataType is a TDMS data type code.
type DataType uint32

const (
	TypeVoid                DataType = 0x00
	TypeI8                  DataType = 0x01
	TypeI16                 DataType = 0x02
	TypeI32                 DataType = 0x03
	TypeI64                 DataType = 0x04
	TypeU8                  DataType = 0x05
	TypeU16                 DataType = 0x06
	TypeU32                 DataType = 0x07
	TypeU64                 DataType = 0x08
	TypeSingleFloat         DataType = 0x09
	TypeDoubleFloat         DataType = 0x0A
	TypeExtendedFloat       DataType = 0x0B
	TypeSingleFloatWithUnit DataType = 0x19
	TypeDoubleFloatWithUnit DataType = 0x1A
	TypeString              DataType = 0x20
	TypeBoolean             DataType = 0x21
	TypeTimeStamp           DataType = 0x44
)

// Size returns the encoded size of one value, or 0 for variable length or
// unsupported types.
func (t DataType) Size() int {
	switch t {
	case TypeI8, TypeU8, TypeBoolean:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeU32, TypeSingleFloat, TypeSingleFloatWithUnit:
		return 4
	case TypeI64, TypeU64, TypeDoubleFloat, TypeDoubleFloatWithUnit:
		return 8
	case TypeTimeStamp:
		return 16
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeU8:
		return "u8"
	case TypeU16:
		return "u16"
	case TypeU32:
		return "u32"
	case TypeU64:
		return "u64"
	case TypeSingleFloat, TypeSingleFloatWithUnit:
		return "float32"
	case TypeDoubleFloat, TypeDoubleFloatWithUnit:
		return "float64"
	case TypeExtendedFloat:
		return "float128"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "bool"
	case TypeTimeStamp:
		return "timestamp"
	default:
		return fmt.Sprintf("0x%x", uint32(t))
	}
}

// Properties holds object properties. Values are int64, uint64, float64,
// string, bool or time.Time.
type Properties map[string]any

// File is a decoded TDMS file.
type File struct {
	Properties Properties
	Groups     []*Group
}

// Group returns the group with the given name, or nil.
func (f *File) Group(name string) *Group {
	for _, g := range f.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Channels returns every channel in file order.
func (f *File) Channels() []*Channel {
	var out []*Channel
	for _, g := range f.Groups {
		out = append(out, g.Channels...)
	}
	return out
}

// Group is a named collection of channels.
type Group struct {
	Name       string
	Properties Properties
	Channels   []*Channel
}

// Channel returns the channel with the given name, or nil.
func (g *Group) Channel(name string) *Channel {
	for _, c := range g.Channels {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Channel is one data stream. Data holds every value of the channel across
// all segments, converted to float64.
type Channel struct {
	Group      string
	Name       string
	Type       DataType
	Properties Properties
	Data       []float64
}

// Path returns the qualified object path of the channel.
func (c *Channel) Path() string {
	return ObjectPath(c.Group, c.Name)
}

// ObjectPath builds a TDMS object path from its names. No names yields the
// root path "/".
func ObjectPath(names ...string) string {
	if len(names) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, n := range names {
		b.WriteString("/'")
		b.WriteString(strings.ReplaceAll(n, "'", "''"))
		b.WriteString("'")
	}
	return b.String()
}

// SplitPath parses an object path into its names. The root path yields no
// names.
func SplitPath(p string) ([]string, error) {
	if p == "/" {
		return nil, nil
	}
	var names []string
	i := 0
	for i < len(p) {
		if p[i] != '/' || i+1 >= len(p) || p[i+1] != '\'' {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, p)
		}
		i += 2
		var b strings.Builder
		closed := false
		for i < len(p) {
			if p[i] == '\'' {
				if i+1 < len(p) && p[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				i++
				closed = true
				break
			}
			b.WriteByte(p[i])
			i++
		}
		if !closed {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, p)
		}
		names = append(names, b.String())
	}
	if len(names) == 0 || len(names) > 2 {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, p)
	}
	return names, nil
}

// tdmsEpoch is the TDMS timestamp origin.
var tdmsEpoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)
