package utils

// Ptr returns a pointer to v, for filling optional struct fields inline.
func Ptr[T any](v T) *T {
	return &v
}
