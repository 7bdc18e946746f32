package bus

// Envelope is the JSON frame exchanged with bus observers. Type selects
// which of the remaining fields are meaningful.
type Envelope struct {
	Type      string        `json:"type"`
	Serial    string        `json:"serial,omitempty"`
	Path      string        `json:"path,omitempty"`
	Interface string        `json:"interface,omitempty"`
	Member    string        `json:"member,omitempty"`
	Args      []interface{} `json:"args,omitempty"`
	Name      string        `json:"name,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Frame types.
const (
	TypeMethodCall   = "method_call"
	TypeMethodReturn = "method_return"
	TypeError        = "error"
	TypeSignal       = "signal"
	TypePing         = "ping"
	TypePong         = "pong"
)
