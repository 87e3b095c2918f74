package notifications

// Aggregate groups rows by aggregation key, falling back to the row ID. Groups
// are ordered by their first row and keep the input order of their rows, so
// newest-first input yields newest-first groups.
func Aggregate(rows []Row) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, r := range rows {
		key := r.ID
		if r.AggregationKey != nil {
			key = *r.AggregationKey
		}
		if i, ok := index[key]; ok {
			groups[i].Rows = append(groups[i].Rows, r)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Group{Key: key, Rows: []Row{r}})
	}
	return groups
}

// checkGroup rejects groups the database should never produce: several rows
// of a type that does not aggregate, or rows of mixed types.
func checkGroup(g Group) error {
	first := g.Rows[0]
	if len(g.Rows) > 1 && !first.Type.Aggregatable() {
		return integrityErrorf(first.ID, "notification type %s should not be aggregated (has %d)", first.Type, len(g.Rows))
	}
	for _, r := range g.Rows[1:] {
		if r.Type != first.Type {
			return integrityErrorf(first.ID, "invalid aggregation of %s, found unexpected %s", first.Type, r.Type)
		}
	}
	return nil
}
