package dispatch

// Request names an operation and carries its raw, unvalidated arguments
type Request struct {
	OperationName string         `json:"operation_name"`
	Arguments     map[string]any `json:"arguments"`
}

// NewRequest creates a request
func NewRequest(name string, args map[string]any) Request {
	return Request{OperationName: name, Arguments: args}
}
