package global

// Generic slice helpers shared across the fork engine and transport.

func Any[T any](items []*T, predicate func(*T) bool) bool {
	for _, it := range items {
		if predicate(it) {
			return true
		}
	}
	return false
}

func Find[T any](items []*T, predicate func(*T) bool) *T {
	for _, it := range items {
		if predicate(it) {
			return it
		}
	}
	return nil
}

func Filter[T any](items []*T, predicate func(*T) bool) []*T {
	out := make([]*T, 0, len(items))
	for _, it := range items {
		if predicate(it) {
			out = append(out, it)
		}
	}
	return out
}

func Map[T1, T2 any](data []T1, mapper func(T1) T2) []T2 {
	out := make([]T2, len(data))
	for i, d := range data {
		out[i] = mapper(d)
	}
	return out
}

func RemoveAt[T any](slice []T, i int) []T {
	return append(slice[:i], slice[i+1:]...)
}
