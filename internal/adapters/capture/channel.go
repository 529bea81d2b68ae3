package capture

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bft-labs/tapgdc/internal/domain"
)

// Reserved channel identifiers hold auxiliary data, not signal.
const (
	ReservedSecondaryData = "Secondary Data"
	ReservedMetaData      = "Meta Data"
)

// ChannelID returns the channel identifier embedded in a qualified column
// name: the second segment of the path, quotes removed. The name must have
// at least two segments after the root.
func ChannelID(name string) (string, error) {
	segs := strings.Split(strings.ReplaceAll(name, "'", ""), "/")
	if len(segs) < 3 || segs[0] != "" || segs[1] == "" {
		return "", fmt.Errorf("%w: column %q is not a /<channel>/<name> path", domain.ErrMalformedHeader, name)
	}
	return segs[1], nil
}

func isReserved(id string) bool {
	return id == ReservedSecondaryData || id == ReservedMetaData
}

// Channel is a signal channel of a capture and the frame columns it owns.
type Channel struct {
	ID string

	// PulseIteration is the channel number minus one; capture files number
	// channels from 1.
	PulseIteration int

	Columns []int
}

// Channels groups the frame columns by channel number, drops the reserved
// channels and returns the rest in ascending numeric order. Non-numeric
// identifiers are malformed, as are two spellings of one number ("1" and
// "01").
func Channels(f Frame) ([]Channel, error) {
	byNumber := make(map[int]*Channel)
	var order []*Channel
	for i, col := range f.Columns {
		id, err := ChannelID(col.Name)
		if err != nil {
			return nil, err
		}
		if isReserved(id) {
			continue
		}
		n, err := strconv.Atoi(id)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: channel %q is not a positive decimal number", domain.ErrMalformedHeader, id)
		}
		ch, ok := byNumber[n]
		switch {
		case !ok:
			ch = &Channel{ID: id, PulseIteration: n - 1}
			byNumber[n] = ch
			order = append(order, ch)
		case ch.ID != id:
			return nil, fmt.Errorf("%w: channels %q and %q are both pulse iteration %d", domain.ErrMalformedHeader, ch.ID, id, n-1)
		}
		ch.Columns = append(ch.Columns, i)
	}
	if len(order) == 0 {
		return nil, domain.ErrNoChannels
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].PulseIteration < order[j].PulseIteration
	})
	out := make([]Channel, len(order))
	for i, ch := range order {
		out[i] = *ch
	}
	return out, nil
}
