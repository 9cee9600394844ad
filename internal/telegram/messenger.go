package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_movie_gate_bot/internal/gating"
)

type messageAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	ApproveChatJoinRequest(ctx context.Context, params *bot.ApproveChatJoinRequestParams) (bool, error)
}

// Messenger implements gating.Messenger over the Bot API.
type Messenger struct {
	api messageAPI
}

var _ gating.Messenger = (*Messenger)(nil)

// NewMessenger wraps api.
func NewMessenger(api messageAPI) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) SendMessage(ctx context.Context, chatID int64, text string, keyboard gating.Keyboard) error {
	if err := m.ready(); err != nil {
		return err
	}

	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if markup := inlineMarkup(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := m.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (m *Messenger) EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard gating.Keyboard) error {
	if err := m.ready(); err != nil {
		return err
	}

	params := &bot.EditMessageTextParams{ChatID: chatID, MessageID: messageID, Text: text}
	if markup := inlineMarkup(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := m.api.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (m *Messenger) SendDocument(ctx context.Context, chatID int64, fileRef string) error {
	if err := m.ready(); err != nil {
		return err
	}

	_, err := m.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileString{Data: fileRef},
	})
	if err != nil {
		return fmt.Errorf("send document to %d: %w", chatID, err)
	}
	return nil
}

func (m *Messenger) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := m.ready(); err != nil {
		return err
	}

	_, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		return fmt.Errorf("answer callback %s: %w", callbackID, err)
	}
	return nil
}

func (m *Messenger) ApproveJoinRequest(ctx context.Context, channelID, userID int64) error {
	if err := m.ready(); err != nil {
		return err
	}

	_, err := m.api.ApproveChatJoinRequest(ctx, &bot.ApproveChatJoinRequestParams{
		ChatID: channelID,
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("approve join request of %d in %d: %w", userID, channelID, err)
	}
	return nil
}

func (m *Messenger) ready() error {
	if m == nil || m.api == nil {
		return errors.New("telegram messenger is not initialized")
	}
	return nil
}

func inlineMarkup(keyboard gating.Keyboard) *models.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Text,
				CallbackData: b.CallbackData,
				URL:          b.URL,
			})
		}
		rows = append(rows, buttons)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
