package filter

// Chain folds predicates left to right into one verdict per entity.
// The first predicate seeds the result; later ones combine with their logic,
// evaluating match only when it can change the outcome (false under and,
// true under or is already decided). No predicates keep every entity.
func Chain(preds []Predicate, n int, match func(pred, entity int) bool) []bool {
	acc := make([]bool, n)
	if len(preds) == 0 {
		for i := range acc {
			acc[i] = true
		}
		return acc
	}

	for pi, p := range preds {
		for i := range acc {
			switch {
			case pi == 0:
				acc[i] = match(pi, i)
			case p.Chain() == Or:
				if !acc[i] {
					acc[i] = match(pi, i)
				}
			default:
				if acc[i] {
					acc[i] = match(pi, i)
				}
			}
		}
	}
	return acc
}
