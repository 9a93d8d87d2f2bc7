package validation

// CoerceBool decodes a loosely-typed wire value as a boolean. Controllers
// written against a JSON transport send true, "true", or 1 interchangeably,
// so the mapping is fixed here instead of compared ad hoc per call site:
//
//	true  <- true, "true", "1", 1 (any numeric 1)
//	false <- false, "false", "0", 0, nil
//
// Anything else is not a boolean; ok is false and the caller decides.
func CoerceBool(v interface{}) (value, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch t {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
		return false, false
	case float64:
		// encoding/json decodes all numbers to float64
		if t == 1 {
			return true, true
		}
		if t == 0 {
			return false, true
		}
		return false, false
	case int:
		if t == 1 {
			return true, true
		}
		if t == 0 {
			return false, true
		}
		return false, false
	case nil:
		return false, true
	}
	return false, false
}

// CoerceFloat decodes a wire value as a float64, accepting JSON numbers
// and integer types.
func CoerceFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// CoerceInt decodes a wire value as an int, accepting JSON numbers that
// are integral.
func CoerceInt(v interface{}) (int, bool) {
	f, ok := CoerceFloat(v)
	if !ok {
		return 0, false
	}
	i := int(f)
	if float64(i) != f {
		return 0, false
	}
	return i, true
}
