package domain

// PipelineID names a media pipeline shared by the two parties of a call.
type PipelineID string

// CallState is the per-session call state. The concrete values are Idle,
// Calling, BeingCalled and InCall; nothing else implements it.
type CallState interface {
	callState()
	// Kind is a short name used in logs and presence listings.
	Kind() string
}

type Idle struct{}

// Calling is the caller side of an unanswered call. Offer is the caller's SDP.
type Calling struct {
	Peer  Username
	Offer string
}

// BeingCalled is the callee side of an unanswered call.
type BeingCalled struct {
	Peer Username
}

type InCall struct {
	Peer     Username
	Pipeline PipelineID
}

func (Idle) callState()        {}
func (Calling) callState()     {}
func (BeingCalled) callState() {}
func (InCall) callState()      {}

func (Idle) Kind() string        { return "idle" }
func (Calling) Kind() string     { return "calling" }
func (BeingCalled) Kind() string { return "being_called" }
func (InCall) Kind() string      { return "in_call" }

// PeerOf returns the other party named by s, if any.
func PeerOf(s CallState) (Username, bool) {
	switch st := s.(type) {
	case Calling:
		return st.Peer, true
	case BeingCalled:
		return st.Peer, true
	case InCall:
		return st.Peer, true
	default:
		return "", false
	}
}
