// Package address canonicalizes the identifiers that arrive from the radio
// transport and from the router into the numeric node number used on the
// mesh.
//
// Node numbers are unsigned 32-bit values. Identifiers may arrive as Go
// integers, JSON numbers, decimal strings, or the "!a1b2c3d4" hexadecimal
// notation Meshtastic uses for user IDs. Values that cannot be represented
// as a node number are rejected rather than wrapped.
package address

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"meshbridge/pkg/errors"
)

// NodeID is a normalized mesh node number.
type NodeID uint32

// Broadcast addresses every node on the primary channel.
const Broadcast NodeID = math.MaxUint32

func (n NodeID) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Hex renders the node number in Meshtastic user-ID notation.
func (n NodeID) Hex() string {
	return fmt.Sprintf("!%08x", uint32(n))
}

func (n NodeID) IsBroadcast() bool {
	return n == Broadcast
}

// Normalize returns the node number for v. A nil or blank v is an
// InvalidAddress error; use NormalizeOptional where an omitted address is
// part of the caller's contract.
func Normalize(v interface{}) (NodeID, error) {
	id, ok, err := NormalizeOptional(v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, invalid(v, "address is required")
	}
	return id, nil
}

// NormalizeOptional is Normalize for fields that may be absent. ok is false
// when v is nil or a blank string.
func NormalizeOptional(v interface{}) (id NodeID, ok bool, err error) {
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case NodeID:
		return val, true, nil
	case *NodeID:
		if val == nil {
			return 0, false, nil
		}
		return *val, true, nil
	case string:
		return parseString(val)
	case *string:
		if val == nil {
			return 0, false, nil
		}
		return parseString(*val)
	case json.Number:
		return parseString(string(val))
	case int:
		return fromInt64(int64(val))
	case int8:
		return fromInt64(int64(val))
	case int16:
		return fromInt64(int64(val))
	case int32:
		return fromInt64(int64(val))
	case int64:
		return fromInt64(val)
	case uint:
		return fromUint64(uint64(val))
	case uint8:
		return NodeID(val), true, nil
	case uint16:
		return NodeID(val), true, nil
	case uint32:
		return NodeID(val), true, nil
	case uint64:
		return fromUint64(val)
	case float64:
		return fromFloat(val)
	case float32:
		return fromFloat(float64(val))
	default:
		return 0, false, invalid(v, fmt.Sprintf("unsupported identifier type %T", v))
	}
}

func parseString(s string) (NodeID, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}

	if strings.HasPrefix(s, "!") {
		hex := s[1:]
		if len(hex) == 0 || len(hex) > 8 {
			return 0, false, invalid(s, "node ID must have 1 to 8 hex digits")
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, false, invalid(s, err.Error())
		}
		return NodeID(n), true, nil
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false, invalid(s, err.Error())
	}
	return NodeID(n), true, nil
}

func fromInt64(v int64) (NodeID, bool, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, false, invalid(v, "out of node number range")
	}
	return NodeID(v), true, nil
}

func fromUint64(v uint64) (NodeID, bool, error) {
	if v > math.MaxUint32 {
		return 0, false, invalid(v, "out of node number range")
	}
	return NodeID(v), true, nil
}

func fromFloat(v float64) (NodeID, bool, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, invalid(v, "not an integer")
	}
	if v < 0 || v > math.MaxUint32 {
		return 0, false, invalid(v, "out of node number range")
	}
	return NodeID(v), true, nil
}

func invalid(v interface{}, reason string) error {
	return errors.ErrInvalidAddress.
		WithMessage(fmt.Sprintf("invalid address %v: %s", v, reason)).
		WithDetail("address", fmt.Sprintf("%v", v))
}
