// Package taint defines the provenance labels carried by inter-process
// communication events.
package taint

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tag is a single provenance label, backed by its bit position in a tag mask.
type Tag uint8

// Bit positions of the known labels.
const (
	Location Tag = iota
	Contacts
	Mic
	PhoneNumber
	LocationGPS
	LocationNet
	LocationLast
	Camera
	Accelerometer
	SMS
	IMEI
	IMSI
	ICCID
	DeviceSN
	Account
	History
	IncomingData
)

// MaxTag is the highest bit position that is accounted. Higher bits in an
// incoming mask are ignored.
const MaxTag = IncomingData

// ErrInvalidTag is returned when a tag reference cannot be resolved to a single bit.
var ErrInvalidTag = errors.New("invalid taint tag")

var identifiers = [...]string{
	Location:      "location",
	Contacts:      "contacts",
	Mic:           "mic",
	PhoneNumber:   "phone_number",
	LocationGPS:   "location_gps",
	LocationNet:   "location_net",
	LocationLast:  "location_last",
	Camera:        "camera",
	Accelerometer: "accelerometer",
	SMS:           "sms",
	IMEI:          "imei",
	IMSI:          "imsi",
	ICCID:         "iccid",
	DeviceSN:      "device_sn",
	Account:       "account",
	History:       "history",
	IncomingData:  "incoming_data",
}

// Valid reports whether t is within the accounted bit range.
func (t Tag) Valid() bool {
	return t <= MaxTag
}

// Mask returns the single-bit mask for t.
func (t Tag) Mask() uint32 {
	return 1 << uint(t)
}

// String returns the short identifier used in configuration files.
func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("bit:%d", uint8(t))
	}
	return identifiers[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: bit %d", ErrInvalidTag, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. yaml.v3 and encoding/json
// both use it, so policy tables can be keyed by tag identifiers.
func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTag resolves a tag reference. Accepted forms:
//
//	contacts      short identifier
//	bit:9         bit position
//	0x200, 512    single-bit mask
func ParseTag(s string) (Tag, error) {
	ref := strings.ToLower(strings.TrimSpace(s))
	if ref == "" {
		return 0, fmt.Errorf("%w: empty reference", ErrInvalidTag)
	}

	for i, id := range identifiers {
		if id == ref {
			return Tag(i), nil
		}
	}

	if pos, ok := strings.CutPrefix(ref, "bit:"); ok {
		n, err := strconv.ParseUint(pos, 10, 8)
		if err != nil || Tag(n) > MaxTag {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTag, s)
		}
		return Tag(n), nil
	}

	mask, err := strconv.ParseUint(ref, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTag, s)
	}
	if bits.OnesCount64(mask) != 1 {
		return 0, fmt.Errorf("%w: mask %q must have exactly one bit set", ErrInvalidTag, s)
	}
	pos := Tag(bits.TrailingZeros64(mask))
	if pos > MaxTag {
		return 0, fmt.Errorf("%w: bit %d out of range", ErrInvalidTag, pos)
	}
	return pos, nil
}

// Decompose splits a tag mask into its individual tags in ascending bit order.
// Only bits 0..MaxTag are considered.
func Decompose(mask int32) []Tag {
	m := uint32(mask) & (1<<(uint(MaxTag)+1) - 1)
	if m == 0 {
		return nil
	}
	tags := make([]Tag, 0, bits.OnesCount32(m))
	for m != 0 {
		pos := bits.TrailingZeros32(m)
		tags = append(tags, Tag(pos))
		m &^= 1 << uint(pos)
	}
	return tags
}

// All returns every accounted tag in bit order.
func All() []Tag {
	tags := make([]Tag, 0, int(MaxTag)+1)
	for t := Tag(0); t <= MaxTag; t++ {
		tags = append(tags, t)
	}
	return tags
}

// UnmarshalYAML accepts any scalar form understood by ParseTag.
func (t *Tag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: expected scalar", ErrInvalidTag, value.Line)
	}
	return t.UnmarshalText([]byte(value.Value))
}

// MarshalYAML emits the short identifier.
func (t Tag) MarshalYAML() (any, error) {
	text, err := t.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(text), nil
}
