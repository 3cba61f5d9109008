package service

func Filter[T any](items []T, fn func(T) bool) []T {
	var result []T
	for _, v := range items {
		if fn(v) {
			result = append(result, v)
		}
	}
	return result
}

func Map[T, R any](items []T, fn func(T) R) []R {
	result := make([]R, 0, len(items))
	for _, v := range items {
		result = append(result, fn(v))
	}
	return result
}
