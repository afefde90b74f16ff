package types

// JSONMap stores an arbitrary JSON object inside a JSONB column. Columns
// using it are tagged with gorm's json serializer.
type JSONMap map[string]any

// String returns the value stored under key when it is a string.
func (j JSONMap) String(key string) string {
	if j == nil {
		return ""
	}
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}
