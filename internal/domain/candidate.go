package domain

// ICECandidate is a network-reachability descriptor exchanged in trickle ICE.
type ICECandidate struct {
	Candidate     string `json:"candidate" validate:"required"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}
