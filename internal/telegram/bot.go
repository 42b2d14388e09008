package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/savelov/reshalka/internal/service"
)

// Bot is the thin Telegram entry point: it greets the user and hands them
// the Mini App button. All solving happens over the HTTP API.
type Bot struct {
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	users     *service.UserService
	webAppURL string
}

func NewBot(api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService, webAppURL string) *Bot {
	return &Bot{
		api:       api,
		log:       log,
		users:     users,
		webAppURL: webAppURL,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	profile, err := b.users.Profile(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName)
	if err != nil {
		b.log.Error("upsert user failed", "telegram_id", msg.From.ID, "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так, попробуйте позже.")
		return
	}
	if profile.User.IsBanned {
		b.sendText(msg.Chat.ID, "Ваш аккаунт заблокирован.")
		return
	}

	switch msg.Command() {
	case "start":
		b.sendWelcome(msg.Chat.ID, msg.From.FirstName)
	case "help":
		b.sendText(msg.Chat.ID, "Откройте приложение кнопкой «Решить задачу» и пришлите условие текстом или фото.")
	default:
		b.sendText(msg.Chat.ID, "Я решаю задачи только в приложении. Нажмите кнопку «Решить задачу» внизу.")
	}
}

func (b *Bot) sendWelcome(chatID int64, firstName string) {
	greeting := "Привет"
	if firstName != "" {
		greeting = fmt.Sprintf("Привет, %s", firstName)
	}
	text := fmt.Sprintf("%s! Я — Решалка, помощник по математике.\n\nПришлите условие задачи текстом или фото в приложении, и я разберу решение по шагам.", greeting)

	reply := tgbotapi.NewMessage(chatID, text)
	reply.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.KeyboardButton{
				Text:   "Решить задачу",
				WebApp: &tgbotapi.WebAppInfo{URL: b.webAppURL},
			},
		),
	)
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send welcome failed", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("send message failed", "chat_id", chatID, "err", err)
	}
}
