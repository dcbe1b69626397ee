package workflow

import (
	"strings"

	"github.com/classmgr/attendbot/internal/store"
)

// Action is a decoded button action. Tokens are `~`-delimited tuples with
// the first segment as discriminator; they are decoded once here and matched
// exhaustively by the engine. Unknown or malformed tokens decode to nil and
// are ignored.
type Action interface {
	Token() string
}

const (
	tokenTakeAttendance    = "ATTENDANCE_AI"
	tokenAcceptAttendance  = "ACCEPT_STUD_ATTEND"
	tokenIdentifyFace      = "IDENTIFY_STUD_PIC"
	tokenDeclineAttendance = "DECLINE_STUD_ATTEND"
	tokenListEnrollees     = "LIST_STUDS"
	tokenClosePanel        = "CLOSE_PANEL"
)

// TakeAttendance starts attendance capture for a session.
type TakeAttendance struct {
	SessionCode string
}

func (a TakeAttendance) Token() string {
	return tokenTakeAttendance + "~" + a.SessionCode
}

// AcceptAttendance confirms a matched face and commits attendance.
type AcceptAttendance struct {
	Ref         store.EnrolleeRef
	SessionCode string
}

func (a AcceptAttendance) Token() string {
	return tokenAcceptAttendance + "~" + a.Ref.String() + "~" + a.SessionCode
}

// IdentifyFace enters identity resolution for a held face crop.
type IdentifyFace struct {
	CropID string
}

func (a IdentifyFace) Token() string {
	return tokenIdentifyFace + "~" + a.CropID
}

// DeclineAttendance is emitted on cards of already-attended faces.
// Revocation has no semantics; the handler answers that it is unsupported.
type DeclineAttendance struct {
	Ref store.EnrolleeRef
}

func (a DeclineAttendance) Token() string {
	return tokenDeclineAttendance + "~" + a.Ref.String()
}

// ListEnrollees lists the enrollees attended for a session today.
type ListEnrollees struct {
	SessionCode string
}

func (a ListEnrollees) Token() string {
	return tokenListEnrollees + "~" + a.SessionCode
}

// ClosePanel dismisses a session panel message.
type ClosePanel struct{}

func (a ClosePanel) Token() string {
	return tokenClosePanel
}

// ParseAction decodes a button token. Returns nil for unknown discriminators
// and malformed argument lists.
func ParseAction(token string) Action {
	parts := strings.Split(token, "~")
	switch parts[0] {
	case tokenTakeAttendance:
		if len(parts) != 2 || parts[1] == "" {
			return nil
		}
		return TakeAttendance{SessionCode: parts[1]}
	case tokenAcceptAttendance:
		if len(parts) != 3 || parts[2] == "" {
			return nil
		}
		ref, err := store.ParseRef(parts[1])
		if err != nil {
			return nil
		}
		return AcceptAttendance{Ref: ref, SessionCode: parts[2]}
	case tokenIdentifyFace:
		if len(parts) != 2 || parts[1] == "" {
			return nil
		}
		return IdentifyFace{CropID: parts[1]}
	case tokenDeclineAttendance:
		if len(parts) != 2 {
			return nil
		}
		ref, err := store.ParseRef(parts[1])
		if err != nil {
			return nil
		}
		return DeclineAttendance{Ref: ref}
	case tokenListEnrollees:
		if len(parts) != 2 || parts[1] == "" {
			return nil
		}
		return ListEnrollees{SessionCode: parts[1]}
	case tokenClosePanel:
		if len(parts) != 1 {
			return nil
		}
		return ClosePanel{}
	default:
		return nil
	}
}
