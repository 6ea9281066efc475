package model

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// ハイパーパラメータの値はYAMLやJSONから来るため、同じ整数でも
// int、int64、float64 のいずれかで届く。以下のヘルパーはそれらを
// 目的の型に揃え、変換できない場合は ValidationError を返す。

// ToInt converts v to an int. Integral floats are accepted.
func ToInt(param string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float32:
		return floatToInt(param, float64(x))
	case float64:
		return floatToInt(param, x)
	default:
		return 0, errors.NewValidationError(param, "must be an integer", v)
	}
}

func floatToInt(param string, f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errors.NewValidationError(param, "must be an integer", f)
	}
	return int(f), nil
}

// ToFloat converts v to a float64.
func ToFloat(param string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, errors.NewValidationError(param, "must be a number", v)
	}
}

// ToBool converts v to a bool. The strings accepted by strconv.ParseBool are allowed.
func ToBool(param string, v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, errors.NewValidationError(param, "must be a boolean", v)
		}
		return b, nil
	default:
		return false, errors.NewValidationError(param, "must be a boolean", v)
	}
}

// ToString converts v to a string. Only string values are accepted.
func ToString(param string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(param, "must be a string", v)
	}
	return s, nil
}
