package app

import "github.com/dkeye/Call/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop_frame"
	case KickMember:
		return "kick_member"
	default:
		return "no_action"
	}
}

// Policy decides what to do with a session whose outbound queue is full.
type Policy interface {
	OnBackPressure(s *core.Session) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Session) BackpressureAction {
	return KickMember
}
