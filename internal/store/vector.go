package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// encodeVector renders v as a JSON array. Non-finite entries, which JSON
// cannot carry, are written as the strings "NaN", "+Inf" and "-Inf".
func encodeVector(v []float64) (string, error) {
	if v == nil {
		return "[]", nil
	}
	out := make([]any, len(v))
	for i, x := range v {
		switch {
		case math.IsNaN(x):
			out[i] = "NaN"
		case math.IsInf(x, 1):
			out[i] = "+Inf"
		case math.IsInf(x, -1):
			out[i] = "-Inf"
		default:
			out[i] = x
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeVector(s string) ([]float64, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		if len(r) > 0 && r[0] == '"' {
			var str string
			if err := json.Unmarshal(r, &str); err != nil {
				return nil, err
			}
			x, err := strconv.ParseFloat(str, 64)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = x
			continue
		}
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}
