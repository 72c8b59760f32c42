package datastore

import (
	"math"
	"strconv"
)

// normalizeKey converts an API key to the string the engine sees.
// Numbers become their decimal form, so 42 and "42" name the same
// record.
func normalizeKey(key interface{}) (string, error) {
	switch k := key.(type) {
	case string:
		return k, nil
	case int:
		return strconv.FormatInt(int64(k), 10), nil
	case int8:
		return strconv.FormatInt(int64(k), 10), nil
	case int16:
		return strconv.FormatInt(int64(k), 10), nil
	case int32:
		return strconv.FormatInt(int64(k), 10), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case uint:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint64:
		return strconv.FormatUint(k, 10), nil
	case float32:
		return formatFloat(float64(k), 32)
	case float64:
		return formatFloat(k, 64)
	}
	return "", &KeyTypeError{Key: key}
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &KeyTypeError{Key: f}
	}
	return strconv.FormatFloat(f, 'f', -1, bits), nil
}
