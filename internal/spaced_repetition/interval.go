package spaced_repetition

// DayMillis is the length of one day in milliseconds
const DayMillis int64 = 86_400_000

// boxIntervals holds the review interval in days for each Leitner box
var boxIntervals = [...]int{0, 1, 3, 7, 14, 30}

// MaxBox is the highest box index
const MaxBox = len(boxIntervals) - 1

// ClampBox limits box to [0, MaxBox].
func ClampBox(box int) int {
	if box < 0 {
		return 0
	}
	if box > MaxBox {
		return MaxBox
	}
	return box
}

// IntervalDays returns the review interval for a box. Out-of-range boxes are clamped.
func IntervalDays(box int) int {
	return boxIntervals[ClampBox(box)]
}
