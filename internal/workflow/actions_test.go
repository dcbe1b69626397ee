package workflow

import (
	"testing"

	"github.com/classmgr/attendbot/internal/store"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		name  string
		token string
		want  Action
	}{
		{"take attendance", "ATTENDANCE_AI~CS101-A", TakeAttendance{SessionCode: "CS101-A"}},
		{"accept by handle", "ACCEPT_STUD_ATTEND~2002~CS101-A", AcceptAttendance{Ref: store.RefByHandle(2002), SessionCode: "CS101-A"}},
		{"accept by guid", "ACCEPT_STUD_ATTEND~ab-12~CS101-A", AcceptAttendance{Ref: store.RefByGuid("ab-12"), SessionCode: "CS101-A"}},
		{"identify", "IDENTIFY_STUD_PIC~crop-1", IdentifyFace{CropID: "crop-1"}},
		{"decline", "DECLINE_STUD_ATTEND~2002", DeclineAttendance{Ref: store.RefByHandle(2002)}},
		{"list", "LIST_STUDS~CS101-A", ListEnrollees{SessionCode: "CS101-A"}},
		{"close", "CLOSE_PANEL", ClosePanel{}},
		{"unknown discriminator", "SOMETHING_ELSE~x", nil},
		{"empty", "", nil},
		{"take attendance no code", "ATTENDANCE_AI", nil},
		{"take attendance empty code", "ATTENDANCE_AI~", nil},
		{"accept missing session", "ACCEPT_STUD_ATTEND~2002", nil},
		{"accept empty ref", "ACCEPT_STUD_ATTEND~~CS101-A", nil},
		{"decline empty ref", "DECLINE_STUD_ATTEND~", nil},
		{"close with args", "CLOSE_PANEL~x", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseAction(tc.token)
			if got != tc.want {
				t.Errorf("ParseAction(%q) = %#v, want %#v", tc.token, got, tc.want)
			}
		})
	}
}

func TestActionTokenRoundTrip(t *testing.T) {
	actions := []Action{
		TakeAttendance{SessionCode: "CS101-A"},
		AcceptAttendance{Ref: store.RefByHandle(2002), SessionCode: "CS101-A"},
		IdentifyFace{CropID: "crop-1"},
		DeclineAttendance{Ref: store.RefByGuid("guid-x")},
		ListEnrollees{SessionCode: "CS101-A"},
		ClosePanel{},
	}
	for _, a := range actions {
		if got := ParseAction(a.Token()); got != a {
			t.Errorf("round trip of %#v via %q produced %#v", a, a.Token(), got)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Jiří Novák", "jiri novak"},
		{"  Anna-Marie  Svobodová ", "anna marie svobodova"},
		{"JOHN", "john"},
	}
	for _, tc := range cases {
		if got := normalizeName(tc.in); got != tc.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitName(t *testing.T) {
	first, last := splitName("Anna Marie Svobodova")
	if first != "Anna" || last != "Marie Svobodova" {
		t.Errorf("splitName = (%q, %q)", first, last)
	}
	first, last = splitName("Cher")
	if first != "Cher" || last != "" {
		t.Errorf("splitName single = (%q, %q)", first, last)
	}
	first, last = splitName("  ")
	if first != "" || last != "" {
		t.Errorf("splitName blank = (%q, %q)", first, last)
	}
}
