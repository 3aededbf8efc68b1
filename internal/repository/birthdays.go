package repository

import "time"

const birthdayLookahead = 7 * 24 * time.Hour

// BirthdayWindow is the inclusive month/day range [Start, End] ending seven
// days after Start. It never spans more than one month boundary.
type BirthdayWindow struct {
	StartMonth, StartDay int
	EndMonth, EndDay     int
}

func NewBirthdayWindow(today time.Time) BirthdayWindow {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(birthdayLookahead)
	return BirthdayWindow{
		StartMonth: int(start.Month()),
		StartDay:   start.Day(),
		EndMonth:   int(end.Month()),
		EndDay:     end.Day(),
	}
}

func (w BirthdayWindow) SameMonth() bool {
	return w.StartMonth == w.EndMonth
}

// Contains applies the same predicate as the SQL in UpcomingBirthdays.
func (w BirthdayWindow) Contains(month, day int) bool {
	if w.SameMonth() {
		return month == w.StartMonth && day >= w.StartDay && day <= w.EndDay
	}
	return (month == w.StartMonth && day >= w.StartDay) ||
		(month == w.EndMonth && day <= w.EndDay)
}
