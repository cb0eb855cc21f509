package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parsePeriodRange resolves a job config into a labeled time range. Accepted
// forms, in precedence order:
//
//	{"from": "2024-01-01", "to": "2024-03-31"}  explicit range
//	{"period": "2024-Q1"}                        calendar quarter
//	{"period": "2024-05"}                        calendar month
//	{"period": "2024"}                           calendar year
//
// The returned to is exclusive.
func parsePeriodRange(cfg map[string]any) (label string, from, to time.Time, err error) {
	fromRaw, _ := cfg["from"].(string)
	toRaw, _ := cfg["to"].(string)
	label, _ = cfg["period"].(string)

	if fromRaw != "" && toRaw != "" {
		from, err = time.Parse("2006-01-02", fromRaw)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", fromRaw)
		}
		to, err = time.Parse("2006-01-02", toRaw)
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", toRaw)
		}
		to = to.AddDate(0, 0, 1)
		if !from.Before(to) {
			return "", time.Time{}, time.Time{}, fmt.Errorf("from %s is not before to %s", fromRaw, toRaw)
		}
		if label == "" {
			label = fromRaw + ".." + toRaw
		}
		return label, from, to, nil
	}

	if label == "" {
		return "", time.Time{}, time.Time{}, fmt.Errorf("config requires a period or a from/to range")
	}
	from, to, err = periodBounds(label)
	return label, from, to, err
}

func periodBounds(period string) (from, to time.Time, err error) {
	if year, quarter, ok := splitQuarter(period); ok {
		from = time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 3, 0), nil
	}
	if t, perr := time.Parse("2006-01", period); perr == nil {
		return t, t.AddDate(0, 1, 0), nil
	}
	if t, perr := time.Parse("2006", period); perr == nil {
		return t, t.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unrecognized period %q", period)
}

func splitQuarter(period string) (year, quarter int, ok bool) {
	parts := strings.SplitN(period, "-Q", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1000 {
		return 0, 0, false
	}
	quarter, err = strconv.Atoi(parts[1])
	if err != nil || quarter < 1 || quarter > 4 {
		return 0, 0, false
	}
	return year, quarter, true
}
