// Package cron implements a 5- or 6-field cron rule grammar plus a
// whole-minute-boundary scheduler built on top of the event loop's Delay
// timers.
package cron

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/netcored/netcore/api"
)

type fieldBounds struct{ min, max int }

var (
	secBounds   = fieldBounds{0, 59}
	minBounds   = fieldBounds{0, 59}
	hourBounds  = fieldBounds{0, 23}
	domBounds   = fieldBounds{1, 31}
	monthBounds = fieldBounds{1, 12}
	dowBounds   = fieldBounds{0, 6}
)

// fieldPattern pre-validates a field before it is parsed: a
// comma-separated list of `*`, `*/step`, `a-b`, `a-b/step`, or a bare
// number.
var fieldPattern = regexp.MustCompile(`^(\*(/\d+)?|\d+(-\d+)?(/\d+)?)(,(\*(/\d+)?|\d+(-\d+)?(/\d+)?))*$`)

// Rule is a parsed cron rule: for each field, the set of values within
// that field's range that satisfy it.
type Rule struct {
	raw                             string
	sec, min, hour, dom, month, dow map[int]bool
}

// String returns the rule text Parse was given.
func (r *Rule) String() string { return r.raw }

// Parse validates and parses a 5- or 6-field cron rule. A malformed rule
// fails synchronously and leaves nothing registered.
func Parse(expr string) (*Rule, error) {
	fields := strings.Fields(expr)

	var secField string
	switch len(fields) {
	case 5:
		secField = "0"
		fields = append([]string{secField}, fields...)
	case 6:
		// sec min hour dom month dow, as given.
	default:
		return nil, fmt.Errorf("%w: expected 5 or 6 fields, got %d in %q", api.ErrInvalidCronRule, len(fields), expr)
	}

	sec, err := parseField(fields[0], secBounds)
	if err != nil {
		return nil, err
	}
	min, err := parseField(fields[1], minBounds)
	if err != nil {
		return nil, err
	}
	hour, err := parseField(fields[2], hourBounds)
	if err != nil {
		return nil, err
	}
	dom, err := parseField(fields[3], domBounds)
	if err != nil {
		return nil, err
	}
	month, err := parseField(fields[4], monthBounds)
	if err != nil {
		return nil, err
	}
	dow, err := parseField(fields[5], dowBounds)
	if err != nil {
		return nil, err
	}

	return &Rule{raw: expr, sec: sec, min: min, hour: hour, dom: dom, month: month, dow: dow}, nil
}

func parseField(field string, b fieldBounds) (map[int]bool, error) {
	if !fieldPattern.MatchString(field) {
		return nil, fmt.Errorf("%w: malformed field %q", api.ErrInvalidCronRule, field)
	}
	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, b, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func parsePart(part string, b fieldBounds, set map[int]bool) error {
	step := 1
	base := part
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		base = part[:idx]
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s <= 0 {
			return fmt.Errorf("%w: bad step in %q", api.ErrInvalidCronRule, part)
		}
		step = s
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = b.min, b.max
	case strings.IndexByte(base, '-') >= 0:
		idx := strings.IndexByte(base, '-')
		var err error
		if lo, err = strconv.Atoi(base[:idx]); err != nil {
			return fmt.Errorf("%w: bad range start in %q", api.ErrInvalidCronRule, part)
		}
		if hi, err = strconv.Atoi(base[idx+1:]); err != nil {
			return fmt.Errorf("%w: bad range end in %q", api.ErrInvalidCronRule, part)
		}
	default:
		v, err := strconv.Atoi(base)
		if err != nil {
			return fmt.Errorf("%w: bad value %q", api.ErrInvalidCronRule, part)
		}
		lo, hi = v, v
	}

	if lo < b.min || hi > b.max || lo > hi {
		return fmt.Errorf("%w: %q out of range [%d,%d]", api.ErrInvalidCronRule, part, b.min, b.max)
	}
	for v := lo; v <= hi; v += step {
		set[v] = true
	}
	return nil
}

func (r *Rule) matches(minute, hour, dom, month, dow int) bool {
	return r.min[minute] && r.hour[hour] && r.dom[dom] && r.month[month] && r.dow[dow]
}

// FireOffsets returns the sorted second offsets within [0,60) at which r
// fires for the whole minute beginning at start, or nil if start's
// minute doesn't satisfy the rule at all. start should already be
// truncated to a minute boundary.
func (r *Rule) FireOffsets(start time.Time) []int {
	if !r.matches(start.Minute(), start.Hour(), start.Day(), int(start.Month()), int(start.Weekday())) {
		return nil
	}
	offsets := make([]int, 0, len(r.sec))
	for s := range r.sec {
		offsets = append(offsets, s)
	}
	sort.Ints(offsets)
	return offsets
}
