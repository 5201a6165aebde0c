// Package cronexpr implements the 5-field cron grammar and IST-based
// nextAfter arithmetic from spec §4.B/§9.
//
// This is deliberately NOT built on a cron timer library (the teacher uses
// github.com/adhocore/gronx for its own cron.Service, but spec §9's design
// notes forbid depending on the identical timer library the original source
// used — doing so would reintroduce exactly the validate/nextAfter
// divergence the port is supposed to eliminate). Validate and NextAfter
// share one parser (Parse), so every expression Validate accepts is one
// NextAfter evaluates with the same grammar.
package cronexpr

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// IST is the fixed civil timezone cron evaluation is pinned to (spec §9).
// IST has no DST, so a fixed offset is equivalent to loading the zoneinfo
// entry; either works, but deriving it via LoadLocation lets the host's
// tzdata name the offset for diagnostics.
var IST = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}()

// field indices.
const (
	fMinute = iota
	fHour
	fDay
	fMonth
	fDOW
	fieldCount
)

var fieldBounds = [fieldCount][2]int{
	fMinute: {0, 59},
	fHour:   {0, 23},
	fDay:    {1, 31},
	fMonth:  {1, 12},
	fDOW:    {0, 6},
}

// matcher is the parsed form of one cron field: either "any" (*), an exact
// set of allowed values, or a step (*/N).
type matcher struct {
	any  bool
	step int // 0 if not a step field
	set  map[int]bool
}

func (m matcher) match(v int) bool {
	if m.any {
		return true
	}
	if m.step > 0 {
		return v%m.step == 0
	}
	return m.set[v]
}

// parsed is a fully parsed 5-field expression.
type parsed struct {
	raw    string
	fields [fieldCount]matcher
}

// parseField accepts exactly the grammar spec §3 guarantees: "*", a bare
// integer, or "*/N". Wider forms ("1-5", "6,0") are intentionally rejected
// here — spec §9 notes the control-plane's validator library accepts them
// "without guarantees in nextAfter"; this port documents which subset it
// supports by simply not accepting the rest, rather than accepting them and
// producing unreliable nextAfter results.
func parseField(idx int, raw string) (matcher, error) {
	lo, hi := fieldBounds[idx][0], fieldBounds[idx][1]

	if raw == "*" {
		return matcher{any: true}, nil
	}

	if strings.HasPrefix(raw, "*/") {
		n, err := strconv.Atoi(raw[2:])
		if err != nil || n <= 0 || n > hi {
			return matcher{}, fmt.Errorf("invalid step value %q", raw)
		}
		return matcher{step: n}, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return matcher{}, fmt.Errorf("invalid field value %q", raw)
	}
	if n < lo || n > hi {
		return matcher{}, fmt.Errorf("field value %d out of range [%d,%d]", n, lo, hi)
	}
	return matcher{set: map[int]bool{n: true}}, nil
}

// Parse validates and parses a 5-field cron expression.
func Parse(expr string) (parsed, error) {
	fields := strings.Fields(expr)
	if len(fields) != fieldCount {
		return parsed{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	p := parsed{raw: expr}
	for i, raw := range fields {
		m, err := parseField(i, raw)
		if err != nil {
			return parsed{}, fmt.Errorf("field %d: %w", i, err)
		}
		p.fields[i] = m
	}
	return p, nil
}

// Validate reports whether expr matches exactly the 5-field grammar of spec
// §3/§4.B. Additional forms (L, W, ?, a seconds field) are rejected.
func Validate(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

// matchesCivil reports whether the given IST wall-clock time satisfies p.
// Seconds are ignored (truncated to zero per spec §4.B).
func (p parsed) matchesCivil(t time.Time) bool {
	return p.fields[fMinute].match(t.Minute()) &&
		p.fields[fHour].match(t.Hour()) &&
		p.fields[fDay].match(t.Day()) &&
		p.fields[fMonth].match(int(t.Month())) &&
		p.fields[fDOW].match(int(t.Weekday()))
}

// fallbackWindow is the spec §4.B/§9 fallback when evaluation cannot
// determine a result: t0 + 1 hour. Preserved deliberately as a
// source-behavior footgun, not silently "fixed".
const fallbackWindow = time.Hour

// maxScanMinutes bounds the brute-force minute-by-minute scan so a
// pathological expression (e.g. Feb 30, which never occurs) cannot spin
// forever. It spans 4 years of minutes, so an expression that matches at
// least once in any four-year span resolves inside it; one that never
// matches (such as day 30 of month 2, which Validate accepts) exhausts the
// scan and takes the t0+1h fallback.
const maxScanMinutes = 4 * 366 * 24 * 60

// NextAfter returns the smallest UTC instant strictly after t0 at which the
// IST civil time satisfies expr (spec §4.B).
//
// Policy, verbatim from spec §4.B/§9:
//   - t0 is expressed in IST; the result is computed in IST wall-clock time
//     and converted back to UTC. Because the offset is added to the UTC
//     instant and then manipulated as IST, this is correct for IST but
//     wrong near a UTC midnight boundary for any other timezone — an
//     acknowledged, deliberately preserved quirk (spec §9).
//   - Seconds are truncated to zero.
//   - If t0 itself matches, the result is the *next* matching instant.
//   - On a pattern NextAfter cannot resolve, it falls back to t0+1h and
//     emits a warning (spec permits, discourages, this fallback).
func NextAfter(expr string, t0 time.Time) time.Time {
	p, err := Parse(expr)
	if err != nil {
		slog.Warn("cronexpr: falling back to t0+1h for unparseable expression", "expr", expr, "error", err)
		return t0.Add(fallbackWindow)
	}
	return p.nextAfter(t0)
}

func (p parsed) nextAfter(t0 time.Time) time.Time {
	ist := t0.In(IST)
	// Truncate seconds/nanoseconds, then start scanning from the next minute
	// so that a t0 that itself matches never returns t0 (spec: "never t0").
	cursor := time.Date(ist.Year(), ist.Month(), ist.Day(), ist.Hour(), ist.Minute(), 0, 0, IST).Add(time.Minute)

	for i := 0; i < maxScanMinutes; i++ {
		if p.matchesCivil(cursor) {
			return cursor.UTC()
		}
		cursor = cursor.Add(time.Minute)
	}

	slog.Warn("cronexpr: no matching instant found within scan window, falling back to t0+1h", "expr", p.raw)
	return t0.Add(fallbackWindow)
}
