package task

import "time"

// Param accessors for handler use. Mesh params arrive as decoded HCL
// values: strings, float64 numbers, bools, []any, and map[string]any.

// StringParam returns the named string param or the fallback.
func (inv *Invocation) StringParam(name, fallback string) string {
	if v, ok := inv.Params[name].(string); ok {
		return v
	}
	return fallback
}

// IntParam returns the named numeric param as an int or the fallback.
func (inv *Invocation) IntParam(name string, fallback int) int {
	if v, ok := inv.Params[name].(float64); ok {
		return int(v)
	}
	return fallback
}

// BoolParam returns the named bool param or the fallback.
func (inv *Invocation) BoolParam(name string, fallback bool) bool {
	if v, ok := inv.Params[name].(bool); ok {
		return v
	}
	return fallback
}

// DurationParam parses the named string param as a time.Duration,
// returning the fallback when absent or unparsable.
func (inv *Invocation) DurationParam(name string, fallback time.Duration) time.Duration {
	v, ok := inv.Params[name].(string)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// MapParam returns the named object param or nil.
func (inv *Invocation) MapParam(name string) map[string]any {
	if v, ok := inv.Params[name].(map[string]any); ok {
		return v
	}
	return nil
}
