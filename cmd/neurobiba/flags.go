package main

import (
	"fmt"
	"strconv"
	"strings"
)

// intList is a flag.Value holding comma-separated integers.
type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	*l = nil
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("bad integer %q: %w", part, err)
		}
		*l = append(*l, v)
	}
	return nil
}

// floatList is a flag.Value holding comma-separated float32 values.
type floatList []float32

func (l floatList) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}

func (l *floatList) Set(s string) error {
	*l = nil
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return fmt.Errorf("bad number %q: %w", part, err)
		}
		*l = append(*l, float32(v))
	}
	return nil
}
