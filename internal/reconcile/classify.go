package reconcile

import (
	"fmt"

	"github.com/sadopc/tally/internal/period"
)

// Classification is the relation between an imported snapshot's current
// day and local today.
type Classification string

const (
	SameDay    Classification = "SAME_DAY"
	SameWeek   Classification = "SAME_WEEK"
	PastWeek   Classification = "PAST_WEEK"
	FutureWeek Classification = "FUTURE_WEEK"
)

// Strategy is the merge applied for a classification.
type Strategy string

const (
	FullReplace     Strategy = "full_replace"
	MaxMerge        Strategy = "max_merge"
	ArchiveAdditive Strategy = "archive_additive"
)

func (c Classification) Strategy() Strategy {
	switch c {
	case SameWeek:
		return MaxMerge
	case PastWeek:
		return ArchiveAdditive
	default:
		return FullReplace
	}
}

// Classify compares importedDay with today. Checks run in order: same day,
// same local period, before the local period, otherwise future. A later
// day inside the current period is therefore SAME_WEEK, not FUTURE_WEEK.
func Classify(importedDay, today string, w period.Weekday) (Classification, error) {
	if _, err := period.ParseKey(importedDay); err != nil {
		return "", fmt.Errorf("classify import: %w", err)
	}
	localStart, err := period.Start(today, w)
	if err != nil {
		return "", fmt.Errorf("classify import: %w", err)
	}

	switch {
	case importedDay == today:
		return SameDay, nil
	case period.Contains(localStart, importedDay):
		return SameWeek, nil
	case importedDay < localStart:
		return PastWeek, nil
	default:
		return FutureWeek, nil
	}
}
