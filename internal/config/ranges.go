package config

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TestRange is the inclusive span of test indices a run consumes.
type TestRange struct {
	Start int64
	End   int64
	// Unbounded means End is ignored and the run never exhausts.
	Unbounded bool
}

// Contains reports whether index lies inside the range.
func (r TestRange) Contains(index int64) bool {
	if index < r.Start {
		return false
	}
	return r.Unbounded || index <= r.End
}

func (r TestRange) String() string {
	if r.Unbounded {
		return fmt.Sprintf("%d:infinite", r.Start)
	}
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// ParseTestRange parses "start", "start:end", "start:" and "start:infinite".
// An empty value means 0 to infinity. A single number is both start and end.
func ParseTestRange(value string) (TestRange, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return TestRange{Start: 0, Unbounded: true}, nil
	}
	parts := strings.Split(value, ":")
	if len(parts) > 2 {
		return TestRange{}, fmt.Errorf("could not parse test range %q: too many colons", value)
	}
	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return TestRange{}, fmt.Errorf("could not parse test range start %q: %w", parts[0], err)
	}
	if start < 0 {
		return TestRange{}, fmt.Errorf("test range start must be >= 0, got %d", start)
	}
	if len(parts) == 1 {
		return TestRange{Start: start, End: start}, nil
	}
	endText := strings.TrimSpace(parts[1])
	if endText == "" || strings.EqualFold(endText, "infinite") {
		return TestRange{Start: start, Unbounded: true}, nil
	}
	end, err := strconv.ParseInt(endText, 10, 64)
	if err != nil {
		return TestRange{}, fmt.Errorf("could not parse test range end %q: %w", endText, err)
	}
	if end < start {
		return TestRange{}, fmt.Errorf("test range end %d is before start %d", end, start)
	}
	return TestRange{Start: start, End: end}, nil
}

// RatioRange bounds the fraction of payload bytes replaced per mutation.
type RatioRange struct {
	Min float64
	Max float64
}

func (r RatioRange) String() string {
	return strconv.FormatFloat(r.Min, 'g', -1, 64) + ":" + strconv.FormatFloat(r.Max, 'g', -1, 64)
}

// ParseRatio parses "r" (min = max = r) or "min:max". Both values must lie
// in [0,1] with min <= max.
func ParseRatio(value string) (RatioRange, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return RatioRange{}, fmt.Errorf("ratio is empty")
	}
	parts := strings.Split(value, ":")
	if len(parts) > 2 {
		return RatioRange{}, fmt.Errorf("could not parse ratio %q: too many colons", value)
	}
	minRatio, err := parseRatioValue(parts[0])
	if err != nil {
		return RatioRange{}, err
	}
	maxRatio := minRatio
	if len(parts) == 2 {
		if maxRatio, err = parseRatioValue(parts[1]); err != nil {
			return RatioRange{}, err
		}
	}
	if minRatio > maxRatio {
		return RatioRange{}, fmt.Errorf("ratio min %g is greater than max %g", minRatio, maxRatio)
	}
	return RatioRange{Min: minRatio, Max: maxRatio}, nil
}

func parseRatioValue(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse ratio value %q: %w", text, err)
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("ratio value %g must be between 0 and 1", v)
	}
	return v, nil
}

// ParseIgnoredBytes decodes a list of single-byte hex strings ("0d", "0x0a").
func ParseIgnoredBytes(values []string) ([]byte, error) {
	out := make([]byte, 0, len(values))
	for _, v := range values {
		text := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "0x")
		decoded, err := hex.DecodeString(text)
		if err != nil || len(decoded) != 1 {
			return nil, fmt.Errorf("invalid byte %q: want two hex digits", v)
		}
		out = append(out, decoded[0])
	}
	return out, nil
}
