package metrics

import "sort"

// CountRow is one labelled count from a breakdown map.
type CountRow struct {
	Label string
	Count int
}

// FlattenCounts converts a label->count map into rows sorted by descending
// count, then by label for stability.
func FlattenCounts(counts map[string]int) []CountRow {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]CountRow, 0, len(counts))
	for label, count := range counts {
		rows = append(rows, CountRow{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
