package sanitize

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

func splitList(s string) []string {
	r := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			r = append(r, part)
		}
	}
	return r
}

// ParseExts parses a comma-separated extension list such as "jpg, .PNG"
func ParseExts(s string) []string {
	r := []string{}
	for _, e := range splitList(s) {
		r = append(r, strings.ToLower(strings.TrimPrefix(e, ".")))
	}
	return r
}

// ParseMinutes parses a comma-separated list of minutes such as "20,40"
func ParseMinutes(s string) ([]int, error) {
	r := []int{}
	for _, m := range splitList(s) {
		n, err := strconv.Atoi(m)
		if err != nil || n < 0 || n > 59 {
			return nil, fmt.Errorf("Invalid minute '%v'", m)
		}
		r = append(r, n)
	}
	return r, nil
}

// ParsePasses parses a comma-separated list of pass names.
// An empty string returns nil, which means DefaultPasses.
func ParsePasses(s string) ([]Pass, error) {
	names := splitList(s)
	if len(names) == 0 {
		return nil, nil
	}
	r := []Pass{}
	for _, n := range names {
		if !slices.Contains(AllPasses(), n) {
			return nil, fmt.Errorf("Unknown pass '%v'. Valid passes are %v", n, strings.Join(AllPasses(), ", "))
		}
		r = append(r, Pass(n))
	}
	return r, nil
}
