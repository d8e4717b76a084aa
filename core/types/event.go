package types

// Event is the wire form of a protocol event: a type tag plus flat string
// attributes, suitable for JSON transport and log lines.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
