package utils

import (
	"fmt"
	"strings"
	"time"
)

// Appointment times arrive as free-form strings from the booking UI: 24-hour
// "15:04", 12-hour "3:04 PM", and the Arabic-locale markers the original
// front-end emitted. Parsing normalizes the markers first, then tries each
// layout; callers degrade to a zero slot on failure rather than surfacing an
// error.

var timeLayouts = []string{"15:04", "3:04 PM", "3:04PM"}

// normalizeMeridiem maps localized AM/PM markers to their English forms.
func normalizeMeridiem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "ص", "AM") // Arabic AM
	s = strings.ReplaceAll(s, "م", "PM") // Arabic PM
	return s
}

// ParseTimeSlot converts a raw time string to minutes since midnight.
// Accepts both 24-hour and 12-hour representations.
func ParseTimeSlot(raw string) (int, error) {
	s := normalizeMeridiem(raw)
	if s == "" {
		return 0, fmt.Errorf("empty time string")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("unparseable time string %q", raw)
}

// To12Hour renders a raw time string in 12-hour display form ("2:30 PM").
// Unparseable input is returned unchanged.
func To12Hour(raw string) string {
	s := normalizeMeridiem(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("3:04 PM")
		}
	}
	return raw
}
