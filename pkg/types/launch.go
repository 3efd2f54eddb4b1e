package types

// LaunchRequest is the payload of one frame. It is passed through to the
// launcher exactly as parsed; the server never inspects its fields.
type LaunchRequest map[string]any

// Type returns the request's "type" field, or "" when absent or not a string.
// Only used for log attributes.
func (r LaunchRequest) Type() string {
	if v, ok := r["type"].(string); ok {
		return v
	}
	return ""
}
