package infer

// CanonicalWidth returns the most frequent value in lengths. When several
// lengths share the highest count, the one seen first wins: a later length
// replaces the current pick only with a strictly greater count. ok is false
// for an empty input.
func CanonicalWidth(lengths []int) (width int, ok bool) {
	if len(lengths) == 0 {
		return 0, false
	}

	counts := make(map[int]int)
	var order []int
	for _, n := range lengths {
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}

	width = order[0]
	for _, n := range order[1:] {
		if counts[n] > counts[width] {
			width = n
		}
	}
	return width, true
}

// FilterRows keeps the records whose length equals the canonical width.
// dropped holds the indexes (into records) of every discarded record.
// With no records the width falls back to fallback.
func FilterRows(records [][]RawCell, fallback int) (kept [][]RawCell, width int, dropped []int) {
	lengths := make([]int, len(records))
	for i, rec := range records {
		lengths[i] = len(rec)
	}

	width, ok := CanonicalWidth(lengths)
	if !ok {
		return nil, fallback, nil
	}

	kept = make([][]RawCell, 0, len(records))
	for i, rec := range records {
		if len(rec) != width {
			dropped = append(dropped, i)
			continue
		}
		kept = append(kept, rec)
	}
	return kept, width, dropped
}
