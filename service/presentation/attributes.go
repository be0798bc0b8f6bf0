package presentation

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	VisibilitySecret  = -1
	VisibilityPrivate = 0
	VisibilityPublic  = 1

	PriorityMin     = -2
	PriorityLow     = -1
	PriorityDefault = 0
	PriorityHigh    = 1
	PriorityMax     = 2
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

type Light struct {
	ARGB  uint32
	OnMs  int
	OffMs int
}

// ParseLight reads "#AARRGGBB,onMs,offMs".
func ParseLight(raw string) (Light, bool) {
	parts := strings.Split(strings.Join(strings.Fields(raw), ""), ",")
	if len(parts) != 3 {
		return Light{}, false
	}

	argb, ok := parseARGB(parts[0])
	if !ok {
		return Light{}, false
	}
	on, err := strconv.Atoi(parts[1])
	if err != nil || on < 0 {
		return Light{}, false
	}
	off, err := strconv.Atoi(parts[2])
	if err != nil || off < 0 {
		return Light{}, false
	}

	return Light{ARGB: argb, OnMs: on, OffMs: off}, true
}

func ParseVibrate(raw string) ([]int64, bool) {
	raw = strings.Join(strings.Fields(raw), "")
	if raw == "" {
		return nil, false
	}

	parts := strings.Split(raw, ",")
	pattern := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return nil, false
		}
		pattern = append(pattern, v)
	}
	return pattern, true
}

func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}

func parseARGB(c string) (uint32, bool) {
	if !ValidColor(c) {
		return 0, false
	}
	hex := c[1:]
	if len(hex) == 6 {
		hex = "FF" + hex
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func parseBounded(s string, def, lo, hi int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}
