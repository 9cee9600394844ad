// Package telegram hosts the Telegram client, update routing and the outbound
// messenger used by the gating workflow.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_movie_gate_bot/internal/config"
	"tg_movie_gate_bot/internal/domain"
	"tg_movie_gate_bot/internal/gating"
	"tg_movie_gate_bot/internal/logging"
)

// botAPI is the slice of *bot.Bot the client and messenger rely on.
type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	ApproveChatJoinRequest(ctx context.Context, params *bot.ApproveChatJoinRequestParams) (bool, error)
}

// Dispatcher consumes converted updates.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev gating.Event) domain.State
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
		"chat_join_request",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot    botAPI
	logger *logrus.Entry

	mu         sync.RWMutex
	dispatcher Dispatcher
}

// NewClient initializes the Telegram bot with long polling and default handlers.
// Updates received before SetDispatcher is called are logged and dropped.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	return client, nil
}

// SetDispatcher routes subsequent updates to d.
func (c *Client) SetDispatcher(d Dispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatcher = d
}

// Messenger returns the outbound side bound to this client's bot.
func (c *Client) Messenger() *Messenger {
	return NewMessenger(c.bot)
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	ev, ok := eventFromUpdate(update)
	if !ok {
		meta := extractUpdateMeta(update)
		fields := logging.Fields{
			"event":       "telegram_update_ignored",
			"update_type": meta.updateType,
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}
		if meta.text != "" {
			fields["text"] = meta.text
		}
		c.logger.WithFields(fields).Debug("telegram update ignored")
		return
	}

	c.mu.RLock()
	dispatcher := c.dispatcher
	c.mu.RUnlock()

	if dispatcher == nil {
		c.logger.WithFields(logging.Fields{
			"event": "telegram_no_dispatcher",
			"kind":  ev.Kind,
		}).Warn("update received before dispatcher was set")
		return
	}

	dispatcher.Dispatch(ctx, ev)
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

// eventFromUpdate converts the updates the gating flow understands.
func eventFromUpdate(update *models.Update) (gating.Event, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Text == "" || !isPrivate(msg.Chat) {
			return gating.Event{}, false
		}

		return gating.Event{
			Kind:     messageKind(msg.Text),
			UserID:   msg.From.ID,
			ChatID:   msg.Chat.ID,
			FullName: fullName(msg.From),
			Text:     msg.Text,
		}, true

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.Data != gating.ConfirmCallbackData {
			return gating.Event{}, false
		}

		return gating.Event{
			Kind:       gating.EventConfirm,
			UserID:     cq.From.ID,
			ChatID:     messageChatID(cq.Message),
			FullName:   fullName(&cq.From),
			MessageID:  messageID(cq.Message),
			CallbackID: cq.ID,
		}, true

	case update.ChatJoinRequest != nil:
		req := update.ChatJoinRequest
		return gating.Event{
			Kind:      gating.EventJoinRequest,
			UserID:    req.From.ID,
			ChatID:    req.UserChatID,
			FullName:  fullName(&req.From),
			ChannelID: req.Chat.ID,
		}, true

	default:
		return gating.Event{}, false
	}
}

func messageKind(text string) gating.EventKind {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return gating.EventText
	}

	command := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}

	switch command {
	case "start":
		return gating.EventStart
	case "stats":
		return gating.EventStats
	case "help":
		return gating.EventHelp
	default:
		return gating.EventText
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	case update.ChatJoinRequest != nil:
		return updateMeta{
			userID:     userID(&update.ChatJoinRequest.From),
			chatID:     chatID(&update.ChatJoinRequest.Chat),
			updateType: "chat_join_request",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func isPrivate(chat models.Chat) bool {
	chatType := string(chat.Type)
	return chatType == "" || chatType == "private"
}

func fullName(user *models.User) string {
	if user == nil {
		return ""
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}

func messageID(msg models.MaybeInaccessibleMessage) int {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.MessageID
	default:
		return 0
	}
}
