package domain

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// ParseClock validates a wall clock string in "15:04" form and returns
// it as minutes since midnight.
func ParseClock(value string) (int, error) {
	parsed, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// Contains reports whether the wall clock time falls inside the window,
// inclusive at both ends.
func (w WorkingHour) Contains(at string) (bool, error) {
	minute, err := ParseClock(at)
	if err != nil {
		return false, err
	}
	start, err := ParseClock(w.Start)
	if err != nil {
		return false, err
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false, err
	}
	return minute >= start && minute <= end, nil
}

// WorkingHourOn returns the doctor's availability window for the
// weekday, if one is configured.
func WorkingHourOn(doctor Doctor, day time.Weekday) (WorkingHour, bool) {
	for _, slot := range doctor.WorkingHours {
		if slot.Day == day {
			return slot, true
		}
	}
	return WorkingHour{}, false
}

// DoctorAvailableAt reports whether the doctor can take an appointment
// at the wall clock time on the given date. A day with no configured
// window and a window marked full are both unavailable.
func DoctorAvailableAt(doctor Doctor, date time.Time, at string) (bool, error) {
	slot, ok := WorkingHourOn(doctor, date.Weekday())
	if !ok {
		return false, nil
	}
	if slot.Full {
		return false, nil
	}
	return slot.Contains(at)
}
