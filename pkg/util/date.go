package util

import (
    "fmt"
    "strconv"
    "strings"
    "time"
)

// DateLayout is the canonical civil-date layout used for fold identifiers and cache keys.
const DateLayout = "2006-01-02"

// ParseTime tries a civil date, RFC3339, a quarter label ("2020Q1") and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(DateLayout, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return NormalizeDate(t), true
    }
    if t, ok := ParseQuarter(s); ok {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return NormalizeDate(time.Unix(ts, 0)), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}

// NormalizeDate drops the clock and location so that a date and a timestamp
// of the same calendar day compare equal.
func NormalizeDate(t time.Time) time.Time {
    y, m, d := t.Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// QuarterStart returns the first day of the quarter containing t.
func QuarterStart(t time.Time) time.Time {
    y, m, _ := t.Date()
    qm := time.Month((int(m)-1)/3*3 + 1)
    return time.Date(y, qm, 1, 0, 0, 0, 0, time.UTC)
}

// AddQuarters shifts a quarter start by n quarters.
func AddQuarters(q time.Time, n int) time.Time {
    return QuarterStart(q).AddDate(0, 3*n, 0)
}

// QuarterLabel formats the quarter containing t as "2006Q1".
func QuarterLabel(t time.Time) string {
    return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
}

// ParseQuarter parses labels like "2020Q3" or "2020-Q3" into the quarter start.
func ParseQuarter(s string) (time.Time, bool) {
    s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
    i := strings.IndexByte(s, 'Q')
    if i <= 0 || i == len(s)-1 {
        return time.Time{}, false
    }
    y, err := strconv.Atoi(s[:i])
    if err != nil {
        return time.Time{}, false
    }
    q, err := strconv.Atoi(s[i+1:])
    if err != nil || q < 1 || q > 4 {
        return time.Time{}, false
    }
    return time.Date(y, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC), true
}

// MonthsBetween returns the number of whole calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
    return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
