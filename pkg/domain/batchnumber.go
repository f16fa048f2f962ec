package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusPrefix returns the numeric batch-number prefix encoding the batch's
// status at creation time. The switch is exhaustive over BatchStatuses so an
// unmapped status can never reach a formatted number.
func StatusPrefix(status BatchStatus) (int, error) {
	switch status {
	case StatusPropagation:
		return 1, nil
	case StatusPlugsLiners:
		return 2, nil
	case StatusPotted:
		return 3, nil
	case StatusReadyForSale:
		return 4, nil
	case StatusArchived:
		return 5, nil
	case StatusLookingGood:
		return 6, nil
	case StatusIncoming, StatusPlanned:
		// Ghost batches are numbered by their target production stage; the
		// stage they convert into is chosen at check-in, so until then they
		// carry the propagation prefix.
		return 1, nil
	}
	return 0, fmt.Errorf("no batch number prefix for status %q", status)
}

// FormatBatchNumber renders a batch number as "<prefix>-<sequence>" with the
// sequence zero-padded to six digits.
func FormatBatchNumber(status BatchStatus, sequence uint64) (string, error) {
	prefix, err := StatusPrefix(status)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%06d", prefix, sequence), nil
}

// ParseBatchNumber extracts the numeric sequence suffix from a batch number.
// Returns false for numbers that do not follow the "<prefix>-<sequence>"
// format; callers treat those as sequence zero when seeding allocators.
func ParseBatchNumber(number string) (uint64, bool) {
	idx := strings.IndexByte(number, '-')
	if idx < 0 || idx == len(number)-1 {
		return 0, false
	}
	seq, err := strconv.ParseUint(number[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
