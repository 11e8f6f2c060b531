package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const ToolSum = "sum"

// Sum adds the numbers argument. Numeric strings are accepted since models
// sometimes quote them.
func Sum(args map[string]any) (string, error) {
	raw, ok := args["numbers"]
	if !ok {
		return "", errors.New("numbers is required")
	}
	items, ok := raw.([]any)
	if !ok {
		return "", errors.New("numbers must be an array")
	}
	var total float64
	for i, item := range items {
		v, err := toFloat(item)
		if err != nil {
			return "", fmt.Errorf("numbers[%d]: %w", i, err)
		}
		total += v
	}
	return formatNumber(total), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}
