package dataprovider

// DiffLinks compares the rows of a link table with the keys that should be
// linked. It returns the target keys without a row (to insert, in target
// order, duplicates collapsed) and the rows whose key is no longer targeted
// (stale, to delete). Rows sharing a key beyond the first are stale too.
func DiffLinks[L any, K comparable](existing []L, keyOf func(L) K, target []K) (missing []K, stale []L) {
	wanted := make(map[K]bool, len(target))
	for _, k := range target {
		wanted[k] = true
	}

	linked := make(map[K]bool, len(existing))
	for _, link := range existing {
		k := keyOf(link)
		if !wanted[k] || linked[k] {
			stale = append(stale, link)
			continue
		}
		linked[k] = true
	}

	for _, k := range target {
		if linked[k] {
			continue
		}
		linked[k] = true
		missing = append(missing, k)
	}
	return missing, stale
}
