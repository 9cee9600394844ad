package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot/models"

	"tg_movie_gate_bot/internal/gating"
)

func TestMessengerSendMessageBuildsInlineKeyboard(t *testing.T) {
	fb := &fakeBot{}
	m := NewMessenger(fb)

	keyboard := gating.Keyboard{
		{{Text: "Kanal 1", URL: "https://t.me/+one"}},
		{{Text: "✅", CallbackData: gating.ConfirmCallbackData}},
	}
	if err := m.SendMessage(context.Background(), 10, "hello", keyboard); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	if len(fb.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fb.sent))
	}
	params := fb.sent[0]
	if params.ChatID != int64(10) || params.Text != "hello" {
		t.Fatalf("unexpected params: %+v", params)
	}

	markup, ok := params.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard markup, got %T", params.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(markup.InlineKeyboard))
	}
	if markup.InlineKeyboard[0][0].URL != "https://t.me/+one" {
		t.Fatalf("expected url button first, got %+v", markup.InlineKeyboard[0][0])
	}
	if markup.InlineKeyboard[1][0].CallbackData != gating.ConfirmCallbackData {
		t.Fatalf("expected confirm button second, got %+v", markup.InlineKeyboard[1][0])
	}
}

func TestMessengerOmitsEmptyKeyboard(t *testing.T) {
	fb := &fakeBot{}
	m := NewMessenger(fb)

	if err := m.SendMessage(context.Background(), 10, "hi", nil); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if fb.sent[0].ReplyMarkup != nil {
		t.Fatalf("expected no reply markup, got %#v", fb.sent[0].ReplyMarkup)
	}

	if err := m.EditMessage(context.Background(), 10, 5, "edited", nil); err != nil {
		t.Fatalf("EditMessage returned error: %v", err)
	}
	if fb.edited[0].ReplyMarkup != nil || fb.edited[0].MessageID != 5 {
		t.Fatalf("unexpected edit params: %+v", fb.edited[0])
	}
}

func TestMessengerSendDocumentUsesFileReference(t *testing.T) {
	fb := &fakeBot{}
	m := NewMessenger(fb)

	if err := m.SendDocument(context.Background(), 10, "BAACAgIAAxkB"); err != nil {
		t.Fatalf("SendDocument returned error: %v", err)
	}

	doc, ok := fb.documents[0].Document.(*models.InputFileString)
	if !ok || doc.Data != "BAACAgIAAxkB" {
		t.Fatalf("expected file reference document, got %#v", fb.documents[0].Document)
	}
}

func TestMessengerCallbackAndApproval(t *testing.T) {
	fb := &fakeBot{}
	m := NewMessenger(fb)
	ctx := context.Background()

	if err := m.AnswerCallback(ctx, "cb-1", "missing", true); err != nil {
		t.Fatalf("AnswerCallback returned error: %v", err)
	}
	if a := fb.answers[0]; a.CallbackQueryID != "cb-1" || a.Text != "missing" || !a.ShowAlert {
		t.Fatalf("unexpected answer params: %+v", a)
	}

	if err := m.ApproveJoinRequest(ctx, -1001, 10); err != nil {
		t.Fatalf("ApproveJoinRequest returned error: %v", err)
	}
	if a := fb.approvals[0]; a.ChatID != int64(-1001) || a.UserID != 10 {
		t.Fatalf("unexpected approval params: %+v", a)
	}
}

func TestMessengerWrapsErrors(t *testing.T) {
	expected := errors.New("Forbidden: bot was blocked by the user")
	m := NewMessenger(&fakeBot{err: expected})
	ctx := context.Background()

	checks := map[string]error{
		"send":     m.SendMessage(ctx, 1, "x", nil),
		"edit":     m.EditMessage(ctx, 1, 2, "x", nil),
		"document": m.SendDocument(ctx, 1, "f"),
		"answer":   m.AnswerCallback(ctx, "cb", "", false),
		"approve":  m.ApproveJoinRequest(ctx, -1, 1),
	}
	for name, err := range checks {
		if !errors.Is(err, expected) {
			t.Fatalf("%s: expected wrapped error, got %v", name, err)
		}
	}

	var empty *Messenger
	if err := empty.SendMessage(ctx, 1, "x", nil); err == nil {
		t.Fatalf("expected error from uninitialized messenger")
	}
}
