package pac

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
	"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March, "APR": time.April,
	"MAY": time.May, "JUN": time.June, "JUL": time.July, "AUG": time.August,
	"SEP": time.September, "OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// splitGMT strips a trailing "GMT" argument and shifts now to UTC if present.
func splitGMT(now time.Time, args []string) (time.Time, []string) {
	if n := len(args); n > 0 && strings.EqualFold(strings.TrimSpace(args[n-1]), "GMT") {
		return now.UTC(), args[:n-1]
	}
	return now, args
}

// inRange checks v against [lo, hi], wrapping around when lo > hi.
func inRange(v, lo, hi int) bool {
	if lo <= hi {
		return v >= lo && v <= hi
	}
	return v >= lo || v <= hi
}

// weekdayRange(wd1 [, wd2] [, "GMT"])
func weekdayRange(now time.Time, args []string) bool {
	now, args = splitGMT(now, args)
	if len(args) < 1 || len(args) > 2 {
		slog.Warn("PAC weekdayRange: incorrect number of arguments", "argc", len(args))
		return false
	}

	wd1, ok1 := weekdays[strings.ToUpper(strings.TrimSpace(args[0]))]
	wd2, ok2 := wd1, true
	if len(args) == 2 {
		wd2, ok2 = weekdays[strings.ToUpper(strings.TrimSpace(args[1]))]
	}
	if !ok1 || !ok2 {
		slog.Warn("PAC weekdayRange: invalid weekday", "args", args)
		return false
	}
	return inRange(int(now.Weekday()), int(wd1), int(wd2))
}

type dateField int

const (
	fieldDay dateField = iota
	fieldMonth
	fieldYear
)

type datePart struct {
	field dateField
	value int
}

func parseDatePart(arg string) (datePart, bool) {
	arg = strings.TrimSpace(arg)
	if m, ok := months[strings.ToUpper(arg)]; ok {
		return datePart{field: fieldMonth, value: int(m)}, true
	}
	n, err := strconv.Atoi(arg)
	switch {
	case err != nil || n < 1:
		return datePart{}, false
	case n < 32:
		return datePart{field: fieldDay, value: n}, true
	default:
		return datePart{field: fieldYear, value: n}, true
	}
}

// bound turns a partial date into a comparable yyyymmdd value. Missing
// fields default to the start (upper=false) or end of the enclosing period.
func bound(now time.Time, parts []datePart, upper bool) int {
	var day, month, year int
	for _, p := range parts {
		switch p.field {
		case fieldDay:
			day = p.value
		case fieldMonth:
			month = p.value
		case fieldYear:
			year = p.value
		}
	}
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		switch {
		case day != 0:
			month = int(now.Month())
		case upper:
			month = 12
		default:
			month = 1
		}
	}
	if day == 0 {
		day = 1
		if upper {
			day = time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
		}
	}
	return year*10000 + month*100 + day
}

// dateRange(day | month | year) or ranges of 2, 4 or 6 arguments, with an
// optional trailing "GMT".
func dateRange(now time.Time, args []string) bool {
	now, args = splitGMT(now, args)
	if len(args) == 0 || len(args) > 6 || (len(args) > 1 && len(args)%2 != 0) {
		slog.Warn("PAC dateRange: incorrect number of arguments", "argc", len(args))
		return false
	}

	parts := make([]datePart, 0, len(args))
	for _, arg := range args {
		p, ok := parseDatePart(arg)
		if !ok {
			slog.Warn("PAC dateRange: invalid argument", "arg", arg)
			return false
		}
		parts = append(parts, p)
	}

	if len(parts) == 1 {
		switch p := parts[0]; p.field {
		case fieldDay:
			return now.Day() == p.value
		case fieldMonth:
			return int(now.Month()) == p.value
		default:
			return now.Year() == p.value
		}
	}

	half := len(parts) / 2
	today := now.Year()*10000 + int(now.Month())*100 + now.Day()
	return inRange(today, bound(now, parts[:half], false), bound(now, parts[half:], true))
}

// timeRange(hour) or ranges of 2, 4 or 6 arguments, with an optional
// trailing "GMT". Range ends are inclusive down to the given precision.
func timeRange(now time.Time, args []string) bool {
	now, args = splitGMT(now, args)

	values := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			slog.Warn("PAC timeRange: invalid argument", "arg", arg)
			return false
		}
		values = append(values, n)
	}

	current := now.Hour()*3600 + now.Minute()*60 + now.Second()
	var lo, hi int
	switch len(values) {
	case 1:
		return now.Hour() == values[0]
	case 2:
		lo, hi = values[0]*3600, values[1]*3600+3599
	case 4:
		lo, hi = values[0]*3600+values[1]*60, values[2]*3600+values[3]*60+59
	case 6:
		lo = values[0]*3600 + values[1]*60 + values[2]
		hi = values[3]*3600 + values[4]*60 + values[5]
	default:
		slog.Warn("PAC timeRange: incorrect number of arguments", "argc", len(values))
		return false
	}
	return inRange(current, lo, hi)
}
