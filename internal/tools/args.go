package tools

// Args holds arguments after coercion to their declared types. Absent
// arguments read as the zero value or the supplied default.
type Args struct {
	values map[string]any
}

// NewArgs builds Args from already-typed values. Used by tests and by callers
// that bypass the dispatcher.
func NewArgs(values map[string]any) Args {
	return Args{values: values}
}

func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a Args) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

func (a Args) Int(name string, def int) int {
	if i, ok := a.values[name].(int); ok {
		return i
	}
	return def
}

func (a Args) Bool(name string) bool {
	b, _ := a.values[name].(bool)
	return b
}
