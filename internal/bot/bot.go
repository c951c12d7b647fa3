package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/orchestrator"
	"github.com/xaenox/pocheck/internal/params"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ProfileSource returns the analyst profile, falling back to an offline one.
type ProfileSource interface {
	ProfileOrOffline(ctx context.Context) models.UserProfile
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	sessions *orchestrator.Sessions
	catalog  *catalog.Catalog
	profiles ProfileSource
	now      func() time.Time
	logger   *zap.Logger
}

func New(token string, sessions *orchestrator.Sessions, cat *catalog.Catalog, profiles ProfileSource, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, sessions, cat, profiles, logger)
	b.api = api
	return b, nil
}

func newBot(s sender, sessions *orchestrator.Sessions, cat *catalog.Catalog, profiles ProfileSource, logger *zap.Logger) *Bot {
	return &Bot{
		sender:   s,
		sessions: sessions,
		catalog:  cat,
		profiles: profiles,
		now:      time.Now,
		logger:   logger,
	}
}

// Start polls for updates until ctx is done. Each message is handled on its
// own goroutine; the session busy guard rejects overlapping requests.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	b.submit(ctx, message, func(s *orchestrator.Session) (models.Message, error) {
		return s.Submit(ctx, content, "")
	})
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	args := strings.Fields(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.sendMessage(message.Chat.ID, helpText)
	case "library":
		b.sendMarkdown(message.Chat.ID, formatLibrary(b.catalog.Categories()))
	case "run":
		b.handleRun(ctx, message, args)
	case "set":
		b.handleSet(message, args)
	case "unset":
		b.handleUnset(message, args)
	case "params":
		b.sendMessage(message.Chat.ID, formatParams(b.session(message)))
	case "preset":
		b.handlePreset(message, args)
	case "ai":
		b.handleAI(message, args)
	case "reset":
		b.session(message).Params().Reset()
		b.sendMessage(message.Chat.ID, "All filters cleared.")
	case "stop":
		b.sessions.Drop(message.Chat.ID)
		b.logger.Info("Session ended",
			zap.Int64("chat_id", message.Chat.ID),
			zap.Int("sessions", b.sessions.Len()))
		b.sendMessage(message.Chat.ID, "Session ended. Send /start to begin a new one.")
	case "clear":
		b.session(message).Clear()
		b.sendMessage(message.Chat.ID, "Chat cleared.")
	case "history":
		b.sendMessage(message.Chat.ID, formatHistory(b.session(message).Messages()))
	case "profile":
		b.sendMessage(message.Chat.ID, formatProfile(b.profiles.ProfileOrOffline(ctx)))
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) session(message *tgbotapi.Message) *orchestrator.Session {
	return b.sessions.Get(message.Chat.ID)
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	b.sendMessage(message.Chat.ID, b.session(message).Messages()[0].Content+"\n\n"+helpText)
}

func (b *Bot) handleRun(ctx context.Context, message *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		b.sendMessage(message.Chat.ID, "Usage: /run <template id>. Use /library to list templates.")
		return
	}
	b.submit(ctx, message, func(s *orchestrator.Session) (models.Message, error) {
		return s.Select(ctx, args[0])
	})
}

func (b *Bot) submit(ctx context.Context, message *tgbotapi.Message, call func(*orchestrator.Session) (models.Message, error)) {
	reply, err := call(b.session(message))
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		b.sendMessage(message.Chat.ID, "Still working on your previous request, please wait.")
		return
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return
	case err != nil:
		b.logger.Error("Failed to submit request",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't process that request.")
		return
	}
	b.sendReply(message.Chat.ID, message.MessageID, reply)
}

func (b *Bot) handleSet(message *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.sendMessage(message.Chat.ID, "Usage: /set <param> <value>, e.g. /set id 45000123")
		return
	}
	token, err := params.ParseToken(args[0])
	if err != nil {
		b.sendErrorMessage(message.Chat.ID, err.Error())
		return
	}
	value := strings.Join(args[1:], " ")
	if err := b.session(message).Params().Set(token, value); err != nil {
		b.sendErrorMessage(message.Chat.ID, err.Error())
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("%s = %s", token, b.session(message).Params().Get(token)))
}

func (b *Bot) handleUnset(message *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		b.sendMessage(message.Chat.ID, "Usage: /unset <param>")
		return
	}
	token, err := params.ParseToken(args[0])
	if err != nil {
		b.sendErrorMessage(message.Chat.ID, err.Error())
		return
	}
	if err := b.session(message).Params().Unset(token); err != nil {
		b.sendErrorMessage(message.Chat.ID, err.Error())
		return
	}
	b.sendMessage(message.Chat.ID, token+" cleared.")
}

func (b *Bot) handlePreset(message *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		b.sendMessage(message.Chat.ID, "Usage: /preset <"+strings.Join(params.Presets, "|")+">")
		return
	}
	p := b.session(message).Params()
	if err := p.ApplyPreset(args[0], b.now()); err != nil {
		b.sendErrorMessage(message.Chat.ID, err.Error())
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Date range %s: %s to %s", args[0], p.Get(params.FromDate), p.Get(params.ToDate)))
}

func (b *Bot) handleAI(message *tgbotapi.Message, args []string) {
	s := b.session(message)
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on":
			s.SetAIEnabled(true)
		case "off":
			s.SetAIEnabled(false)
		default:
			b.sendMessage(message.Chat.ID, "Usage: /ai on|off")
			return
		}
	} else {
		s.SetAIEnabled(!s.AIEnabled())
	}
	b.sendMessage(message.Chat.ID, "Query engine: "+engineName(s.AIEnabled()))
}

func (b *Bot) sendReply(chatID int64, replyToID int, reply models.Message) {
	if err := b.send(chatID, formatReply(reply), "", replyToID); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		return
	}

	if sql := reply.SQL(); sql != "" {
		for _, chunk := range splitMessage(escapeCode(sql), maxMessageLength-len(codeFence)) {
			if err := b.send(chatID, fmt.Sprintf(codeFence, chunk), tgbotapi.ModeMarkdownV2, 0); err != nil {
				b.logger.Error("Failed to send SQL",
					zap.Error(err),
					zap.Int64("chat_id", chatID))
				return
			}
		}
	}
}

// send delivers text in as many messages as the length limit requires. Only
// the first one replies to replyToID.
func (b *Bot) send(chatID int64, text, parseMode string, replyToID int) error {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = parseMode
		msg.ReplyToMessageID = replyToID
		if _, err := b.sender.Send(msg); err != nil {
			return err
		}
		replyToID = 0
	}
	return nil
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if err := b.send(chatID, text, "", 0); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	if err := b.send(chatID, text, tgbotapi.ModeMarkdownV2, 0); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	if err := b.send(chatID, "⚠️ "+text, "", 0); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
