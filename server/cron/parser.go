package cron

import (
	"errors"
	"fmt"
	"strings"
)

const scheduleSeparator = ";"

// ParseSchedules splits a list of cron expressions separated by semicolons and
// validates each one.
//
// Example:
//
//	"0 6 * * *;30 18 * * 5"
func ParseSchedules(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var schedules []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(spec, scheduleSeparator) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue // trailing semicolon
		}
		if seen[s] {
			return nil, fmt.Errorf("duplicate schedule %q", s)
		}
		seen[s] = true
		if _, err := specParser.Parse(s); err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", s, err)
		}
		schedules = append(schedules, s)
	}

	if len(schedules) == 0 {
		return nil, errors.New("no schedules found in cron spec")
	}
	return schedules, nil
}
