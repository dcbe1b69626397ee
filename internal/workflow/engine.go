// Package workflow implements the per-instructor attendance-capture state
// machine. The engine applies one inbound event at a time per instructor
// (serialization is enforced by the dispatcher) and drives the store, the
// ledger and the face matcher.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classmgr/attendbot/internal/bot"
	"github.com/classmgr/attendbot/internal/config"
	"github.com/classmgr/attendbot/internal/ledger"
	"github.com/classmgr/attendbot/internal/recognizer"
	"github.com/classmgr/attendbot/internal/store"
)

// Matcher is the face classifier boundary the engine drives. A detection
// lists face regions with predicted labels; Enroll adds one labelled sample
// incrementally, without retraining.
type Matcher interface {
	Detect(ctx context.Context, image []byte) ([]recognizer.Detection, error)
	Enroll(ctx context.Context, label int, crop []byte, embedding []float32) (*store.FaceSample, error)
}

// pendingFace is a held crop of an unknown face, waiting for the instructor
// to identify it.
type pendingFace struct {
	crop      []byte
	embedding []float32
	path      string // temp file for re-display, removed once resolved
}

// Engine is the attendance workflow state machine. All per-instructor state
// beyond the persisted conversation state lives in bounded in-process maps;
// they are guarded by a mutex only because different instructors' events run
// concurrently.
type Engine struct {
	store     store.Store
	ledger    *ledger.Ledger
	matcher   Matcher
	transport bot.Transport
	messages  *bot.Catalog
	cfg       config.Workflow
	now       func() time.Time

	mu        sync.Mutex
	pending   map[int64]map[string]pendingFace // instructor -> crop id -> face
	selected  map[int64]string                 // instructor -> crop id being identified
	blindRefs map[string]store.EnrolleeRef     // normalized name -> guid ref
}

// New creates the engine.
func New(st store.Store, led *ledger.Ledger, matcher Matcher, transport bot.Transport, messages *bot.Catalog, cfg config.Workflow) *Engine {
	return &Engine{
		store:     st,
		ledger:    led,
		matcher:   matcher,
		transport: transport,
		messages:  messages,
		cfg:       cfg,
		now:       time.Now,
		pending:   make(map[int64]map[string]pendingFace),
		selected:  make(map[int64]string),
		blindRefs: make(map[string]store.EnrolleeRef),
	}
}

// instructor loads the sender, or sends the registration hint for unknown
// handles. A nil instructor with nil error means the event is done.
func (e *Engine) instructor(ctx context.Context, from int64) (*store.Instructor, error) {
	inst, err := e.store.GetInstructor(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.transport.SendText(ctx, from, e.messages.Text("register_hint"), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("loading instructor %d: %w", from, err)
	}
	if err := e.store.TouchInstructor(ctx, from, e.now()); err != nil {
		log.Printf("touching instructor %d: %v", from, err)
	}
	return inst, nil
}

func (e *Engine) setState(ctx context.Context, handle int64, state store.InstructorState, metadata string) error {
	if err := e.store.SetInstructorState(ctx, handle, state, metadata); err != nil {
		return fmt.Errorf("setting state %s for instructor %d: %w", state, handle, err)
	}
	return nil
}

// HandleText applies an inbound text message.
func (e *Engine) HandleText(ctx context.Context, msg bot.TextMessage) error {
	inst, err := e.instructor(ctx, msg.From)
	if inst == nil || err != nil {
		return err
	}

	text := strings.TrimSpace(msg.Text)
	switch text {
	case "/start":
		e.clearPending(inst.Handle)
		if err := e.setState(ctx, inst.Handle, store.StateMainMenu, ""); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("welcome", inst.FullName), nil)
	case "/cancel":
		if inst.State == store.StateMainMenu {
			return e.transport.SendText(ctx, inst.Handle, e.messages.Text("nothing_in_progress"), nil)
		}
		e.clearPending(inst.Handle)
		if err := e.setState(ctx, inst.Handle, store.StateMainMenu, ""); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("cancelled"), nil)
	case "/back":
		return e.stepBack(ctx, inst)
	case "/sessions":
		return e.enterSessions(ctx, inst)
	}

	if inst.State == store.StateIdentifyingFace {
		return e.resolveIdentity(ctx, inst, text)
	}

	switch inst.State {
	case store.StateCheckingAttendance:
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("send_photo", inst.Metadata), nil)
	default:
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("main_menu"), nil)
	}
}

// stepBack walks one state backwards.
func (e *Engine) stepBack(ctx context.Context, inst *store.Instructor) error {
	switch inst.State {
	case store.StateViewingSessions:
		if err := e.setState(ctx, inst.Handle, store.StateMainMenu, ""); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("main_menu"), nil)
	case store.StateCheckingAttendance:
		e.clearPending(inst.Handle)
		inst.State = store.StateViewingSessions
		return e.enterSessions(ctx, inst)
	case store.StateIdentifyingFace:
		// Back to the photo loop, session selection kept.
		if err := e.setState(ctx, inst.Handle, store.StateCheckingAttendance, inst.Metadata); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("send_photo", inst.Metadata), nil)
	default:
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("nothing_in_progress"), nil)
	}
}

// enterSessions lists the instructor's sessions as one panel each.
func (e *Engine) enterSessions(ctx context.Context, inst *store.Instructor) error {
	sessions, err := e.store.ListInstructorSessions(ctx, inst.Handle)
	if err != nil {
		return fmt.Errorf("listing sessions for instructor %d: %w", inst.Handle, err)
	}
	if len(sessions) == 0 {
		if err := e.setState(ctx, inst.Handle, store.StateMainMenu, ""); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("no_sessions"), nil)
	}

	if err := e.setState(ctx, inst.Handle, store.StateViewingSessions, ""); err != nil {
		return err
	}
	for _, s := range sessions {
		kb := bot.Row(
			bot.Button{Text: e.messages.Text("btn_list"), Token: ListEnrollees{SessionCode: s.Code}.Token()},
			bot.Button{Text: e.messages.Text("btn_attendance"), Token: TakeAttendance{SessionCode: s.Code}.Token()},
			bot.Button{Text: e.messages.Text("btn_close"), Token: ClosePanel{}.Token()},
		)
		if err := e.transport.SendText(ctx, inst.Handle, e.sessionPanel(&s), kb); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sessionPanel(s *store.ClassSession) string {
	weekday := s.StartsAt.Weekday().String()
	start := s.StartsAt.Format("15:04")
	end := s.EndsAt.Format("15:04")
	if s.ExamAt.IsZero() {
		return e.messages.Text("session_panel_no_exam", s.Name, s.Code, weekday, start, end, s.Room)
	}
	return e.messages.Text("session_panel", s.Name, s.Code, weekday, start, end, s.Room, s.ExamAt.Format(time.DateOnly))
}

// HandlePhoto runs the face matcher over a submitted class photo and renders
// one action card per detected face.
func (e *Engine) HandlePhoto(ctx context.Context, msg bot.PhotoMessage) error {
	inst, err := e.instructor(ctx, msg.From)
	if inst == nil || err != nil {
		return err
	}

	if inst.State != store.StateCheckingAttendance || inst.Metadata == "" {
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("no_session_selected"), nil)
	}
	sessionCode := inst.Metadata

	image, err := e.transport.DownloadPhoto(ctx, msg.PhotoRef)
	if err != nil {
		return fmt.Errorf("downloading photo %s: %w", msg.PhotoRef, err)
	}

	detections, err := e.matcher.Detect(ctx, image)
	if errors.Is(err, recognizer.ErrDecode) {
		// Bad image, state unchanged.
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("bad_image"), nil)
	}
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}
	if len(detections) == 0 {
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("no_faces"), nil)
	}

	// A new photo replaces any crops held from the previous one.
	e.clearPending(inst.Handle)

	for _, det := range detections {
		if err := e.renderFaceCard(ctx, inst, sessionCode, det); err != nil {
			return err
		}
	}
	return nil
}

// renderFaceCard sends one face crop with the action that fits its state:
// confirm for a match without attendance, decline for an already-attended
// match, identify for an unknown face. Confidence is rendered but never
// auto-accepts.
func (e *Engine) renderFaceCard(ctx context.Context, inst *store.Instructor, sessionCode string, det recognizer.Detection) error {
	if det.Known() {
		enrollee, err := e.store.GetEnrolleeByLabel(ctx, det.Label)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("looking up enrollee for label %d: %w", det.Label, err)
		}
		if err == nil {
			attended, err := e.ledger.Exists(ctx, enrollee.Ref, sessionCode, e.now())
			if err != nil {
				return fmt.Errorf("checking attendance: %w", err)
			}
			if attended {
				kb := bot.Row(bot.Button{
					Text:  e.messages.Text("btn_decline"),
					Token: DeclineAttendance{Ref: enrollee.Ref}.Token(),
				})
				return e.transport.SendPhoto(ctx, inst.Handle, det.Crop, e.messages.Text("face_attended", enrollee.FullName()), kb)
			}
			kb := bot.Row(bot.Button{
				Text:  e.messages.Text("btn_accept"),
				Token: AcceptAttendance{Ref: enrollee.Ref, SessionCode: sessionCode}.Token(),
			})
			caption := e.messages.Text("face_known", enrollee.FullName(), det.Confidence*100)
			return e.transport.SendPhoto(ctx, inst.Handle, det.Crop, caption, kb)
		}
		// Label known to the index but its enrollee row is gone; fall
		// through to the unknown path.
	}

	cropID, err := e.holdCrop(inst.Handle, det)
	if err != nil {
		return err
	}
	kb := bot.Row(bot.Button{
		Text:  e.messages.Text("btn_identify"),
		Token: IdentifyFace{CropID: cropID}.Token(),
	})
	return e.transport.SendPhoto(ctx, inst.Handle, det.Crop, e.messages.Text("face_unknown"), kb)
}

// holdCrop stores an unknown face crop for later identification, backed by a
// temp file.
func (e *Engine) holdCrop(handle int64, det recognizer.Detection) (string, error) {
	cropID := uuid.NewString()
	path := ""
	if e.cfg.TempDir != "" {
		if err := os.MkdirAll(e.cfg.TempDir, 0750); err != nil {
			return "", fmt.Errorf("creating temp directory: %w", err)
		}
		path = filepath.Join(e.cfg.TempDir, cropID+".jpg")
		if err := os.WriteFile(path, det.Crop, 0600); err != nil {
			return "", fmt.Errorf("writing temp crop: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	faces, ok := e.pending[handle]
	if !ok {
		faces = make(map[string]pendingFace)
		e.pending[handle] = faces
	}
	faces[cropID] = pendingFace{crop: det.Crop, embedding: det.Embedding, path: path}
	return cropID, nil
}

// peekPending returns one held crop without consuming it.
func (e *Engine) peekPending(handle int64, cropID string) (pendingFace, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	face, ok := e.pending[handle][cropID]
	return face, ok
}

// dropPending removes one held crop and its temp file.
func (e *Engine) dropPending(handle int64, cropID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	face, ok := e.pending[handle][cropID]
	if !ok {
		return
	}
	delete(e.pending[handle], cropID)
	if face.path != "" {
		_ = os.Remove(face.path)
	}
}

func (e *Engine) hasPending(handle int64, cropID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[handle][cropID]
	return ok
}

// clearPending drops all held crops for an instructor and their temp files.
func (e *Engine) clearPending(handle int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, face := range e.pending[handle] {
		if face.path != "" {
			_ = os.Remove(face.path)
		}
	}
	delete(e.pending, handle)
	delete(e.selected, handle)
}

// HandleButton applies a button press.
func (e *Engine) HandleButton(ctx context.Context, press bot.ButtonPress) error {
	inst, err := e.instructor(ctx, press.From)
	if inst == nil || err != nil {
		return err
	}

	action := ParseAction(press.ActionToken)
	if action == nil {
		// Unknown discriminator, acknowledged and ignored.
		return e.transport.AnswerButtonPress(ctx, press.PressID, "")
	}

	switch a := action.(type) {
	case TakeAttendance:
		return e.takeAttendance(ctx, inst, press, a)
	case AcceptAttendance:
		return e.acceptAttendance(ctx, inst, press, a)
	case IdentifyFace:
		return e.startIdentify(ctx, inst, press, a)
	case DeclineAttendance:
		return e.transport.AnswerButtonPress(ctx, press.PressID, e.messages.Text("decline_unsupported"))
	case ListEnrollees:
		return e.listAttended(ctx, inst, press, a)
	case ClosePanel:
		if err := e.transport.EditOrDeleteMessage(ctx, inst.Handle, press.MessageRef, "", nil); err != nil {
			return err
		}
		return e.transport.AnswerButtonPress(ctx, press.PressID, "")
	default:
		return e.transport.AnswerButtonPress(ctx, press.PressID, "")
	}
}

func (e *Engine) takeAttendance(ctx context.Context, inst *store.Instructor, press bot.ButtonPress, a TakeAttendance) error {
	session, err := e.store.GetSession(ctx, a.SessionCode)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", a.SessionCode, err)
	}
	if session.InstructorHandle != inst.Handle {
		return e.transport.AnswerButtonPress(ctx, press.PressID, "")
	}

	if !e.cfg.IgnoreClassTime && !session.InWindow(e.now()) {
		if err := e.transport.AnswerButtonPress(ctx, press.PressID, ""); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("outside_window", session.Code), nil)
	}

	if err := e.setState(ctx, inst.Handle, store.StateCheckingAttendance, session.Code); err != nil {
		return err
	}
	if err := e.transport.AnswerButtonPress(ctx, press.PressID, ""); err != nil {
		return err
	}
	return e.transport.SendText(ctx, inst.Handle, e.messages.Text("send_photo", session.Code), nil)
}

func (e *Engine) acceptAttendance(ctx context.Context, inst *store.Instructor, press bot.ButtonPress, a AcceptAttendance) error {
	res, err := e.ledger.Record(ctx, a.Ref, a.SessionCode, inst.Handle, e.now())
	if err != nil {
		return fmt.Errorf("recording attendance: %w", err)
	}

	name := a.Ref.String()
	if enrollee, err := e.store.GetEnrollee(ctx, a.Ref); err == nil {
		name = enrollee.FullName()
	}

	key := "attendance_recorded"
	if res.Duplicate {
		key = "attendance_duplicate"
	}
	if err := e.transport.AnswerButtonPress(ctx, press.PressID, ""); err != nil {
		return err
	}
	if press.MessageRef != "" {
		return e.transport.EditOrDeleteMessage(ctx, inst.Handle, press.MessageRef, e.messages.Text(key, name, a.SessionCode), nil)
	}
	return e.transport.SendText(ctx, inst.Handle, e.messages.Text(key, name, a.SessionCode), nil)
}

func (e *Engine) startIdentify(ctx context.Context, inst *store.Instructor, press bot.ButtonPress, a IdentifyFace) error {
	if !e.hasPending(inst.Handle, a.CropID) {
		if err := e.transport.AnswerButtonPress(ctx, press.PressID, ""); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("identify_expired"), nil)
	}

	e.mu.Lock()
	e.selected[inst.Handle] = a.CropID
	e.mu.Unlock()

	if err := e.setState(ctx, inst.Handle, store.StateIdentifyingFace, inst.Metadata); err != nil {
		return err
	}
	if err := e.transport.AnswerButtonPress(ctx, press.PressID, ""); err != nil {
		return err
	}
	return e.transport.SendText(ctx, inst.Handle, e.messages.Text("identify_prompt"), nil)
}

func (e *Engine) listAttended(ctx context.Context, inst *store.Instructor, press bot.ButtonPress, a ListEnrollees) error {
	records, err := e.ledger.List(ctx, a.SessionCode, e.now())
	if err != nil {
		return fmt.Errorf("listing attendance: %w", err)
	}
	if err := e.transport.AnswerButtonPress(ctx, press.PressID, ""); err != nil {
		return err
	}
	if len(records) == 0 {
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("attended_list_empty", a.SessionCode), nil)
	}

	var sb strings.Builder
	sb.WriteString(e.messages.Text("attended_list_header", a.SessionCode))
	for _, rec := range records {
		name := rec.Enrollee.String()
		if enrollee, err := e.store.GetEnrollee(ctx, rec.Enrollee); err == nil {
			name = enrollee.FullName()
		}
		sb.WriteString("\n- ")
		sb.WriteString(name)
	}
	return e.transport.SendText(ctx, inst.Handle, sb.String(), nil)
}

// resolveIdentity handles the instructor's reply while identifying an
// unknown face: a numeric reply is a durable handle, anything else is a full
// name for a blind registration. Both paths enroll the held crop and commit
// attendance immediately.
func (e *Engine) resolveIdentity(ctx context.Context, inst *store.Instructor, text string) error {
	if text == "" {
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("identify_prompt"), nil)
	}

	e.mu.Lock()
	cropID := e.selected[inst.Handle]
	e.mu.Unlock()
	if !e.hasPending(inst.Handle, cropID) {
		if err := e.setState(ctx, inst.Handle, store.StateCheckingAttendance, inst.Metadata); err != nil {
			return err
		}
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("identify_expired"), nil)
	}

	enrollee, err := e.resolveEnrollee(ctx, text)
	if err != nil {
		if errors.Is(err, errBadHandle) {
			return e.transport.SendText(ctx, inst.Handle, e.messages.Text("invalid_handle"), nil)
		}
		return err
	}

	face, ok := e.peekPending(inst.Handle, cropID)
	if !ok {
		return e.transport.SendText(ctx, inst.Handle, e.messages.Text("identify_expired"), nil)
	}

	// The crop stays held until enrollment and the ledger write both land,
	// so a failed attempt can be retried without resending the photo.
	if _, err := e.matcher.Enroll(ctx, enrollee.Label, face.crop, face.embedding); err != nil {
		return fmt.Errorf("enrolling face sample: %w", err)
	}

	sessionCode := inst.Metadata
	if _, err := e.ledger.Record(ctx, enrollee.Ref, sessionCode, inst.Handle, e.now()); err != nil {
		return fmt.Errorf("recording attendance: %w", err)
	}
	e.dropPending(inst.Handle, cropID)

	if err := e.setState(ctx, inst.Handle, store.StateCheckingAttendance, sessionCode); err != nil {
		return err
	}
	return e.transport.SendText(ctx, inst.Handle, e.messages.Text("identified", enrollee.FullName(), sessionCode), nil)
}

// errBadHandle marks a numeric reply that is not a usable handle.
var errBadHandle = errors.New("bad handle")

// resolveEnrollee maps the reply text to an enrollee, creating one when
// needed. Numeric replies become handle references; free text becomes a
// blind registration under a generated guid. Within one process the same
// normalized name reuses the same guid.
func (e *Engine) resolveEnrollee(ctx context.Context, text string) (*store.Enrollee, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n <= 0 {
			return nil, errBadHandle
		}
		ref := store.RefByHandle(n)
		enrollee, err := e.store.GetEnrollee(ctx, ref)
		if err == nil {
			return enrollee, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up enrollee %s: %w", ref, err)
		}
		enrollee = &store.Enrollee{Ref: ref}
		if err := e.store.CreateEnrollee(ctx, enrollee); err != nil {
			return nil, fmt.Errorf("creating enrollee %s: %w", ref, err)
		}
		return enrollee, nil
	}

	first, last := splitName(text)
	key := normalizeName(text)

	e.mu.Lock()
	ref, ok := e.blindRefs[key]
	e.mu.Unlock()
	if !ok {
		ref = store.RefByGuid(store.NewGuid())
	}

	enrollee := &store.Enrollee{Ref: ref, FirstName: first, LastName: last}
	if err := e.store.CreateEnrollee(ctx, enrollee); err != nil {
		return nil, fmt.Errorf("creating blind enrollee: %w", err)
	}

	e.mu.Lock()
	e.blindRefs[key] = enrollee.Ref
	e.mu.Unlock()
	return enrollee, nil
}
