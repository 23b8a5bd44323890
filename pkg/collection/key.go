package collection

import (
	"math"
	"strconv"
)

// Key addresses a slot in a Collection. A key is either an integer position
// or a string name; the zero Key is integer position 0.
type Key struct {
	name  string
	index int
	named bool
}

// IntKey returns the integer key i. Negative positions are not valid keys;
// use ParseKey when the value comes from outside the program.
func IntKey(i int) Key { return Key{index: i} }

// StringKey returns the key named s. A canonical non-negative decimal such as
// "7" is the integer key 7, so "7" and 7 address the same slot; "07", "-7"
// and "+7" stay string keys.
func StringKey(s string) Key {
	if i, ok := decimalIndex(s); ok {
		return IntKey(i)
	}
	return Key{name: s, named: true}
}

// decimalIndex parses s as a non-negative int written without sign, leading
// zeros or surrounding space.
func decimalIndex(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return i, true
}

// ParseKey converts v into a Key. Strings and non-negative values of any Go
// integer type are accepted; everything else yields an *InvalidKeyError.
// Strings go through StringKey.
func ParseKey(v any) (Key, error) {
	switch k := v.(type) {
	case Key:
		if !k.named && k.index < 0 {
			return Key{}, &InvalidKeyError{Key: v}
		}
		return k, nil
	case string:
		return StringKey(k), nil
	case int:
		return intKey(int64(k), v)
	case int8:
		return intKey(int64(k), v)
	case int16:
		return intKey(int64(k), v)
	case int32:
		return intKey(int64(k), v)
	case int64:
		return intKey(k, v)
	case uint:
		return uintKey(uint64(k), v)
	case uint8:
		return uintKey(uint64(k), v)
	case uint16:
		return uintKey(uint64(k), v)
	case uint32:
		return uintKey(uint64(k), v)
	case uint64:
		return uintKey(k, v)
	default:
		return Key{}, &InvalidKeyError{Key: v}
	}
}

func intKey(i int64, orig any) (Key, error) {
	if i < 0 || i > math.MaxInt {
		return Key{}, &InvalidKeyError{Key: orig}
	}
	return IntKey(int(i)), nil
}

func uintKey(u uint64, orig any) (Key, error) {
	if u > math.MaxInt {
		return Key{}, &InvalidKeyError{Key: orig}
	}
	return IntKey(int(u)), nil
}

// IsString reports whether k is a string key.
func (k Key) IsString() bool { return k.named }

// Int returns the integer position and true, or 0 and false for string keys.
func (k Key) Int() (int, bool) {
	if k.named {
		return 0, false
	}
	return k.index, true
}

// String returns the key as text: the name for string keys, the decimal
// position otherwise.
func (k Key) String() string {
	if k.named {
		return k.name
	}
	return strconv.Itoa(k.index)
}
