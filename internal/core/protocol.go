package core

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/dkeye/Call/internal/domain"
)

// Inbound message ids.
const (
	MsgRegister             = "register"
	MsgCall                 = "call"
	MsgIncomingCallResponse = "incomingCallResponse"
	MsgOnIceCandidate       = "onIceCandidate"
	MsgStop                 = "stop"
)

// Outbound message ids.
const (
	MsgRegisterResponse   = "registerResponse"
	MsgIncomingCall       = "incomingCall"
	MsgCallResponse       = "callResponse"
	MsgStartCommunication = "startCommunication"
	MsgIceCandidate       = "iceCandidate"
	MsgStopCommunication  = "stopCommunication"
)

const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"

	// CallAccept is the callResponse value a callee sends to take a call.
	CallAccept = "accept"
)

// Rejected builds a "rejected" response string, optionally with a reason.
func Rejected(reason string) string {
	if reason == "" {
		return ResponseRejected
	}
	return ResponseRejected + ": " + reason
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type Envelope struct {
	ID string `json:"id" validate:"required"`
}

type RegisterMessage struct {
	Name string `json:"name"`
}

type CallMessage struct {
	From     string `json:"from"`
	To       string `json:"to" validate:"required"`
	SDPOffer string `json:"sdpOffer" validate:"required"`
}

type IncomingCallResponseMessage struct {
	CallResponse string `json:"callResponse" validate:"required"`
	From         string `json:"from" validate:"required"`
	SDPOffer     string `json:"sdpOffer" validate:"required_if=CallResponse accept"`
}

func (m IncomingCallResponseMessage) Accepted() bool { return m.CallResponse == CallAccept }

type OnIceCandidateMessage struct {
	Candidate *domain.ICECandidate `json:"candidate" validate:"required"`
}

// DecodeEnvelope returns the id of a raw inbound frame.
func DecodeEnvelope(data []byte) (string, error) {
	var env Envelope
	if err := Decode(data, &env); err != nil {
		return "", err
	}
	return env.ID, nil
}

// Decode unmarshals data into v and checks its required fields. Every
// failure wraps domain.ErrMalformedMessage.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	return nil
}

func EncodeMessage(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return Frame(b), nil
}

type RegisterResponse struct {
	ID       string `json:"id"`
	Response string `json:"response"`
}

type IncomingCall struct {
	ID   string          `json:"id"`
	From domain.Username `json:"from"`
}

type CallResponse struct {
	ID        string `json:"id"`
	Response  string `json:"response"`
	SDPAnswer string `json:"sdpAnswer,omitempty"`
	Message   string `json:"message,omitempty"`
}

type StartCommunication struct {
	ID        string `json:"id"`
	SDPAnswer string `json:"sdpAnswer"`
}

type IceCandidate struct {
	ID        string              `json:"id"`
	Candidate domain.ICECandidate `json:"candidate"`
}

type StopCommunication struct {
	ID string `json:"id"`
}

func NewRegisterResponse(response string) RegisterResponse {
	return RegisterResponse{ID: MsgRegisterResponse, Response: response}
}

func NewIncomingCall(from domain.Username) IncomingCall {
	return IncomingCall{ID: MsgIncomingCall, From: from}
}

func NewCallResponse(response string) CallResponse {
	return CallResponse{ID: MsgCallResponse, Response: response}
}

func NewStartCommunication(answer string) StartCommunication {
	return StartCommunication{ID: MsgStartCommunication, SDPAnswer: answer}
}

func NewIceCandidate(c domain.ICECandidate) IceCandidate {
	return IceCandidate{ID: MsgIceCandidate, Candidate: c}
}

func NewStopCommunication() StopCommunication {
	return StopCommunication{ID: MsgStopCommunication}
}

// PresenceDTO is a read-only view of a registered session (no transport fields).
type PresenceDTO struct {
	Name  domain.Username `json:"name"`
	State string          `json:"state"`
}
