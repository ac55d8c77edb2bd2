package auxiliary

// Op identifies the kind of request travelling down the command queue.
type Op int

const (
	// OpCreate asks the worker to run the handler's create hook.
	OpCreate Op = iota
	// OpDelete asks the worker to run the delete hook and exit the
	// transmit loop. It doubles as the stop sentinel.
	OpDelete
	// OpAbort asks the worker to cancel in-flight work, best effort.
	OpAbort
	// OpRun dispatches a named command with an opaque payload.
	OpRun
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpAbort:
		return "abort"
	case OpRun:
		return "run"
	default:
		return "unknown"
	}
}

// Request is one element of the inbound command queue. ID is a uuid used
// for log correlation only; ordering is positional (strict FIFO).
type Request struct {
	ID   string `json:"id"`
	Op   Op     `json:"op"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// ReplyKind tags the outbound queue elements.
type ReplyKind int

const (
	// ReplyBool acknowledges a lifecycle request (create/delete/abort).
	ReplyBool ReplyKind = iota
	// ReplyMessage carries a report produced by a run command or by the
	// receive loop.
	ReplyMessage
	// ReplyNone records that a request produced no result this cycle
	// (handler error, contained).
	ReplyNone
)

// Reply is one element of the outbound queue. Replies to requests are
// pushed by the transmit loop in request order; the receive loop
// interleaves unsolicited ReplyMessage elements for inbound traffic.
type Reply struct {
	RequestID string    `json:"request_id,omitempty"`
	Kind      ReplyKind `json:"kind"`
	OK        bool      `json:"ok"`
	Report    *Report   `json:"report,omitempty"`
}

// Report is the payload handed back to test code: the result of a run
// command or one message captured by the receive loop.
//
// A non-nil Report with a nil Payload is a legitimate "explicit empty
// response" and is distinct from the ErrNoReport timeout outcome.
type Report struct {
	Payload []byte            `json:"payload,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}
