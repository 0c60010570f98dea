package ir

import (
	"fmt"
	"strconv"
)

// intTagWidth is the number of decimal digits of the largest uint64.
const intTagWidth = 20

// EncodeTagValue renders v as a tag value string. The encoding is order
// preserving within a kind: for any a, b of the same kind,
// Compare(a, b) == strings.Compare(EncodeTagValue(a), EncodeTagValue(b)).
//
//   - IRString is stored verbatim
//   - IRInt is shifted into the unsigned range (offset binary) and zero-padded
//     to 20 digits, so negative numbers sort before positive ones
//   - IRBool is "false" or "true"
//   - IRTime uses the fixed-width TimeLayout
//
// Null and composite values have no tag representation.
func EncodeTagValue(v IRValue) (string, error) {
	switch val := v.(type) {
	case IRString:
		return string(val), nil
	case IRInt:
		u := uint64(val) ^ (1 << 63)
		s := strconv.FormatUint(u, 10)
		for len(s) < intTagWidth {
			s = "0" + s
		}
		return s, nil
	case IRBool:
		return strconv.FormatBool(bool(val)), nil
	case IRTime:
		return val.String(), nil
	default:
		return "", fmt.Errorf("value of kind %s has no tag encoding", KindOf(v))
	}
}

// DecodeTagValue parses a tag value produced by EncodeTagValue for a field
// of the given kind.
func DecodeTagValue(kind Kind, s string) (IRValue, error) {
	switch kind {
	case KindString:
		return IRString(s), nil
	case KindInt:
		if len(s) != intTagWidth {
			return nil, fmt.Errorf("int tag value %q: want %d digits", s, intTagWidth)
		}
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int tag value %q: %w", s, err)
		}
		return IRInt(int64(u ^ (1 << 63))), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("bool tag value %q: %w", s, err)
		}
		return IRBool(b), nil
	case KindTime:
		return ParseIRTime(s)
	default:
		return nil, fmt.Errorf("kind %s has no tag encoding", kind)
	}
}
