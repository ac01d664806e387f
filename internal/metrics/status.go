package metrics

import "sort"

// ErrorBucket is one row of the failure breakdown.
type ErrorBucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// SortErrorBuckets converts an error label->count map into rows sorted by
// descending count, then by label for stability.
func SortErrorBuckets(errs map[string]int64) []ErrorBucket {
	if len(errs) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0, len(errs))
	for label, count := range errs {
		rows = append(rows, ErrorBucket{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
