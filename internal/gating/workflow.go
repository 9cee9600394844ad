// Package gating implements the subscription-gated delivery flow: users send a
// join request to every required channel, confirm, and then exchange catalog
// codes for files.
package gating

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"tg_movie_gate_bot/internal/domain"
	"tg_movie_gate_bot/internal/logging"
	"tg_movie_gate_bot/internal/metrics"
	"tg_movie_gate_bot/internal/store"
)

// ConfirmCallbackData is the payload of the "I have joined" button.
const ConfirmCallbackData = "confirmed_request"

// EventKind classifies inbound events.
type EventKind string

const (
	EventStart       EventKind = "start"
	EventConfirm     EventKind = "confirm"
	EventText        EventKind = "text"
	EventJoinRequest EventKind = "join_request"
	EventStats       EventKind = "stats"
	EventHelp        EventKind = "help"
)

// Event is a transport-neutral inbound event.
type Event struct {
	Kind       EventKind
	UserID     int64
	ChatID     int64
	FullName   string
	Text       string
	ChannelID  int64
	MessageID  int
	CallbackID string
}

// Button is an inline keyboard button; exactly one of CallbackData or URL is set.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Messenger is the outbound side of the messaging transport.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard Keyboard) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard Keyboard) error
	SendDocument(ctx context.Context, chatID int64, fileRef string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	ApproveJoinRequest(ctx context.Context, channelID, userID int64) error
}

// RecordStore persists user records.
type RecordStore interface {
	Get(ctx context.Context, userID int64) (domain.UserRecord, bool)
	Update(ctx context.Context, userID int64, fn store.Mutator) (domain.UserRecord, error)
}

// StatsSource summarizes the store for the operator.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Texts renders user-facing strings.
type Texts interface {
	T(key string, args ...interface{}) string
}

// Deps bundles everything the workflow needs. It is built once at startup.
type Deps struct {
	Store            RecordStore
	Messenger        Messenger
	Stats            StatsSource
	Texts            Texts
	Channels         []domain.Channel
	Catalog          domain.Catalog
	OperatorID       int64
	AutoApproveJoins bool
	Logger           *logrus.Entry
}

type route struct {
	state domain.State
	kind  EventKind
}

type handlerFunc func(ctx context.Context, ev Event, record domain.UserRecord) domain.State

// Workflow dispatches events through the gating state machine.
type Workflow struct {
	deps   Deps
	logger *logrus.Entry
	routes map[route]handlerFunc
}

// NewWorkflow validates deps and builds the transition table.
func NewWorkflow(deps Deps) (*Workflow, error) {
	if deps.Store == nil {
		return nil, errors.New("gating: store is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("gating: messenger is required")
	}
	if deps.Texts == nil {
		return nil, errors.New("gating: texts are required")
	}
	if len(deps.Channels) == 0 {
		return nil, errors.New("gating: at least one required channel is needed")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Logger()
	}

	w := &Workflow{
		deps:   deps,
		logger: logger.WithField("component", "gating"),
	}
	w.routes = w.transitions()

	return w, nil
}

func (w *Workflow) transitions() map[route]handlerFunc {
	routes := map[route]handlerFunc{
		{domain.StateNew, EventStart}:                  w.presentChannels,
		{domain.StateAwaitingSubscription, EventStart}: w.presentChannels,
		{domain.StateAwaitingCode, EventStart}:         w.promptForCode,

		{domain.StateNew, EventConfirm}:                  w.confirm,
		{domain.StateAwaitingSubscription, EventConfirm}: w.confirm,
		{domain.StateAwaitingCode, EventConfirm}:         w.alreadyConfirmed,

		{domain.StateNew, EventText}:                  w.requireConfirmation,
		{domain.StateAwaitingSubscription, EventText}: w.requireConfirmation,
		{domain.StateAwaitingCode, EventText}:         w.deliver,
	}

	for _, state := range []domain.State{domain.StateNew, domain.StateAwaitingSubscription, domain.StateAwaitingCode} {
		routes[route{state, EventJoinRequest}] = w.recordJoin
		routes[route{state, EventStats}] = w.reportStats
		routes[route{state, EventHelp}] = w.help
	}

	return routes
}

// Dispatch runs the handler for the user's current state and the event kind
// and returns the state the user ends up in. It never fails: transport and
// storage problems are logged and the event is dropped.
func (w *Workflow) Dispatch(ctx context.Context, ev Event) domain.State {
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.UserID == 0 {
		w.logger.WithFields(logging.Fields{
			"event": "gating_invalid_event",
			"kind":  ev.Kind,
		}).Warn("dropping event without user id")
		return domain.StateNew
	}
	if ev.Kind == EventStats && ev.UserID != w.deps.OperatorID {
		ev.Kind = EventHelp
	}

	metrics.IncEvent(string(ev.Kind))

	record, exists := w.deps.Store.Get(ctx, ev.UserID)
	state := domain.StateOf(record, exists)

	handler, ok := w.routes[route{state, ev.Kind}]
	if !ok {
		w.eventLogger(ev).WithField("state", state).Debug("no transition for event")
		return state
	}

	// Join requests create the record inside their own update.
	if !exists && ev.Kind != EventJoinRequest {
		created, err := w.deps.Store.Update(ctx, ev.UserID, nil)
		if err != nil {
			w.eventLogger(ev).WithError(err).Warn("new user record not persisted")
		}
		record = created
	}

	next := handler(ctx, ev, record)

	w.eventLogger(ev).WithFields(logging.Fields{
		"from": state,
		"to":   next,
	}).Debug("gating transition")

	return next
}

func (w *Workflow) presentChannels(ctx context.Context, ev Event, _ domain.UserRecord) domain.State {
	text := w.deps.Texts.T("start_greeting", displayName(ev), w.channelList(w.deps.Channels))
	w.send(ctx, ev, text, w.subscriptionKeyboard(w.deps.Channels))

	return domain.StateAwaitingSubscription
}

func (w *Workflow) promptForCode(ctx context.Context, ev Event, _ domain.UserRecord) domain.State {
	w.send(ctx, ev, w.deps.Texts.T("already_confirmed"), nil)
	return domain.StateAwaitingCode
}

func (w *Workflow) recordJoin(ctx context.Context, ev Event, _ domain.UserRecord) domain.State {
	metrics.IncJoinRequest()

	updated, err := w.deps.Store.Update(ctx, ev.UserID, func(r *domain.UserRecord) bool {
		return r.RecordJoin(ev.ChannelID)
	})
	if err != nil {
		w.eventLogger(ev).WithError(err).Warn("join request not persisted")
	}

	w.eventLogger(ev).Info("join request recorded")

	if w.deps.AutoApproveJoins {
		if err := w.deps.Messenger.ApproveJoinRequest(ctx, ev.ChannelID, ev.UserID); err != nil {
			w.transportFailure(ev, "approve_join_request", err)
		}
	}

	w.notifyOperator(ctx, ev, w.deps.Texts.T("admin_join", displayName(ev), ev.UserID, ev.ChannelID))

	return domain.StateOf(updated, true)
}

func (w *Workflow) confirm(ctx context.Context, ev Event, _ domain.UserRecord) domain.State {
	var (
		missing []domain.Channel
		already bool
	)
	_, err := w.deps.Store.Update(ctx, ev.UserID, func(r *domain.UserRecord) bool {
		if r.Confirmed {
			already = true
			return false
		}
		if !r.SatisfiesRequirement(w.deps.Channels) {
			missing = r.MissingChannels(w.deps.Channels)
			return false
		}
		r.Confirmed = true
		return true
	})

	// Another handler confirmed the user after the state was read.
	if already {
		return w.alreadyConfirmed(ctx, ev, domain.UserRecord{})
	}

	if len(missing) > 0 {
		metrics.IncConfirmation(metrics.ResultRejected)
		w.eventLogger(ev).WithField("missing", len(missing)).Info("confirmation rejected")

		w.answer(ctx, ev, w.deps.Texts.T("missing_alert"), true)
		w.replace(ctx, ev, w.deps.Texts.T("missing_channels", w.channelList(missing)), w.subscriptionKeyboard(missing), false)

		return domain.StateAwaitingSubscription
	}

	if err != nil {
		w.eventLogger(ev).WithError(err).Warn("confirmation not persisted")
	}

	metrics.IncConfirmation(metrics.ResultOK)
	w.eventLogger(ev).WithField("state", domain.StateConfirmed).Info("subscription confirmed")

	w.answer(ctx, ev, "", false)
	w.replace(ctx, ev, w.deps.Texts.T("confirmed"), nil, true)
	w.notifyOperator(ctx, ev, w.deps.Texts.T("admin_confirmed", displayName(ev), ev.UserID))

	return domain.StateAwaitingCode
}

func (w *Workflow) alreadyConfirmed(ctx context.Context, ev Event, _ domain.UserRecord) domain.State {
	w.answer(ctx, ev, "", false)
	w.replace(ctx, ev, w.deps.Texts.T("already_confirmed"), nil, true)
	return domain.StateAwaitingCode
}

func (w *Workflow) requireConfirmation(ctx context.Context, ev Event, record domain.UserRecord) domain.State {
	w.send(ctx, ev, w.deps.Texts.T("confirm_first"), nil)
	return domain.StateOf(record, true)
}

func (w *Workflow) deliver(ctx context.Context, ev Event, _ domain.UserRecord) domain.State {
	code, fileRef, ok := w.deps.Catalog.Lookup(ev.Text)
	if !ok {
		metrics.IncDelivery(metrics.ResultInvalid)
		w.eventLogger(ev).WithField("code", code).Info("unknown code submitted")
		w.send(ctx, ev, w.deps.Texts.T("invalid_code"), nil)
		return domain.StateAwaitingCode
	}

	if err := w.deps.Messenger.SendDocument(ctx, chatFor(ev), fileRef); err != nil {
		metrics.IncDelivery(metrics.ResultFailed)
		w.transportFailure(ev, "send_document", err)
		return domain.StateAwaitingCode
	}

	metrics.IncDelivery(metrics.ResultOK)
	w.eventLogger(ev).WithField("code", code).Info("file delivered")
	w.notifyOperator(ctx, ev, w.deps.Texts.T("admin_delivered", displayName(ev), ev.UserID, code))

	return domain.StateAwaitingCode
}

func (w *Workflow) reportStats(ctx context.Context, ev Event, record domain.UserRecord) domain.State {
	if w.deps.Stats == nil {
		return w.help(ctx, ev, record)
	}

	stats, err := w.deps.Stats.Stats(ctx)
	if err != nil {
		w.eventLogger(ev).WithError(err).Warn("stats unavailable")
		return stateAfterReply(ev, record)
	}

	w.send(ctx, ev, w.deps.Texts.T("stats", stats.Users, stats.Confirmed, stats.JoinRequests), nil)
	return stateAfterReply(ev, record)
}

func (w *Workflow) help(ctx context.Context, ev Event, record domain.UserRecord) domain.State {
	w.send(ctx, ev, w.deps.Texts.T("help"), nil)
	return stateAfterReply(ev, record)
}

// stateAfterReply reports the state of a user whose record was not touched.
func stateAfterReply(ev Event, record domain.UserRecord) domain.State {
	return domain.StateOf(record, record.UserID == ev.UserID)
}

func (w *Workflow) send(ctx context.Context, ev Event, text string, keyboard Keyboard) {
	if err := w.deps.Messenger.SendMessage(ctx, chatFor(ev), text, keyboard); err != nil {
		w.transportFailure(ev, "send_message", err)
	}
}

// replace edits the message carrying the button; when that is impossible and
// fallback is set, the text is sent as a new message.
func (w *Workflow) replace(ctx context.Context, ev Event, text string, keyboard Keyboard, fallback bool) {
	if ev.MessageID != 0 {
		err := w.deps.Messenger.EditMessage(ctx, chatFor(ev), ev.MessageID, text, keyboard)
		if err == nil {
			return
		}
		w.transportFailure(ev, "edit_message", err)
		if !fallback {
			return
		}
	}

	w.send(ctx, ev, text, keyboard)
}

func (w *Workflow) answer(ctx context.Context, ev Event, text string, alert bool) {
	if ev.CallbackID == "" {
		return
	}
	if err := w.deps.Messenger.AnswerCallback(ctx, ev.CallbackID, text, alert); err != nil {
		w.transportFailure(ev, "answer_callback", err)
	}
}

func (w *Workflow) notifyOperator(ctx context.Context, ev Event, text string) {
	if w.deps.OperatorID == 0 {
		return
	}
	if err := w.deps.Messenger.SendMessage(ctx, w.deps.OperatorID, text, nil); err != nil {
		w.transportFailure(ev, "notify_operator", err)
	}
}

func (w *Workflow) transportFailure(ev Event, op string, err error) {
	metrics.IncSendError(op)
	w.eventLogger(ev).WithFields(logging.Fields{
		"event": "telegram_call_failed",
		"op":    op,
	}).WithError(err).Warn("telegram call failed")
}

func (w *Workflow) eventLogger(ev Event) *logrus.Entry {
	return logging.WithContext(w.logger, logging.Context{
		UserID:    ev.UserID,
		ChatID:    ev.ChatID,
		ChannelID: ev.ChannelID,
		Event:     "gating_" + string(ev.Kind),
	})
}

func (w *Workflow) channelList(channels []domain.Channel) string {
	var b strings.Builder
	for _, ch := range channels {
		line := ch.InviteLink
		if label := ch.Label(); label != ch.InviteLink {
			line = label + ": " + ch.InviteLink
		}
		b.WriteString(w.deps.Texts.T("channel_line", line))
	}
	return b.String()
}

func (w *Workflow) subscriptionKeyboard(channels []domain.Channel) Keyboard {
	keyboard := make(Keyboard, 0, len(channels)+1)
	for _, ch := range channels {
		label := strings.TrimSpace(ch.Name)
		if label == "" {
			label = w.deps.Texts.T("join_button")
		}
		keyboard = append(keyboard, []Button{{Text: label, URL: ch.InviteLink}})
	}
	keyboard = append(keyboard, []Button{{Text: w.deps.Texts.T("confirm_button"), CallbackData: ConfirmCallbackData}})
	return keyboard
}

// chatFor picks where replies go; private chats share the user id.
func chatFor(ev Event) int64 {
	if ev.ChatID != 0 {
		return ev.ChatID
	}
	return ev.UserID
}

func displayName(ev Event) string {
	if name := strings.TrimSpace(ev.FullName); name != "" {
		return name
	}
	return strconv.FormatInt(ev.UserID, 10)
}
