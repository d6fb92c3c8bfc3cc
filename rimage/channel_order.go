package rimage

import (
	"strings"

	"github.com/pkg/errors"
)

// ChannelOrder names the byte order of the three color channels in a packed pixel.
type ChannelOrder int

// The known channel orders. OrderUnknown means the producer did not say.
const (
	OrderUnknown ChannelOrder = iota
	OrderBGR
	OrderRGB
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderBGR:
		return "bgr"
	case OrderRGB:
		return "rgb"
	case OrderUnknown:
		return "auto"
	default:
		return "invalid"
	}
}

// ParseChannelOrder parses "bgr", "rgb", or "auto". An empty string is "auto".
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OrderUnknown, nil
	case "bgr":
		return OrderBGR, nil
	case "rgb":
		return OrderRGB, nil
	default:
		return OrderUnknown, errors.Errorf("unknown channel order %q", s)
	}
}

// MarshalText encodes the order as its name.
func (o ChannelOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an order name.
func (o *ChannelOrder) UnmarshalText(text []byte) error {
	parsed, err := ParseChannelOrder(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
