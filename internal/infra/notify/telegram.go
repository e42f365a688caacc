// Package notify delivers participant and operator messages over Telegram.
// Participants register themselves by sharing their contact with the bot
// once; after that the gate reaches them by phone number.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the synchronous delivery channel the Queue drains into.
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
	SendImage(ctx context.Context, phone, path, caption string) error
	Alert(ctx context.Context, text string) error
}

type Telegram struct {
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	contacts  *Contacts
	adminChat int64
}

func NewTelegram(api *tgbotapi.BotAPI, contacts *Contacts, adminChat int64, log *slog.Logger) *Telegram {
	return &Telegram{api: api, log: log, contacts: contacts, adminChat: adminChat}
}

// Run consumes bot updates until ctx is canceled. Its only job is building
// the phone -> chat mapping: /start asks for the contact, a shared contact
// gets recorded.
func (t *Telegram) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := t.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return ctx.Err()
		case upd := <-updates:
			if upd.Message == nil {
				continue
			}
			t.onMessage(upd.Message)
		}
	}
}

func (t *Telegram) onMessage(msg *tgbotapi.Message) {
	if msg.Contact != nil {
		t.contacts.Put(msg.Contact.PhoneNumber, msg.Chat.ID)
		t.log.Info("contact registered", "chat_id", msg.Chat.ID)
		reply := tgbotapi.NewMessage(msg.Chat.ID, "You are all set! Session updates will arrive here.")
		reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		t.send(reply)
		return
	}

	if msg.IsCommand() && msg.Command() == "start" {
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Welcome! Share your phone number so we can send your QR code and session updates.")
		kb := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButtonContact("Share my number"),
			),
		)
		kb.OneTimeKeyboard = true
		reply.ReplyMarkup = kb
		t.send(reply)
	}
}

func (t *Telegram) send(msg tgbotapi.Chattable) {
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send failed", "err", err)
	}
}

func (t *Telegram) SendText(_ context.Context, phone, text string) error {
	chatID, ok := t.contacts.Resolve(phone)
	if !ok {
		return fmt.Errorf("notify: no chat registered for %s", phone)
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("notify: send text: %w", err)
	}
	return nil
}

func (t *Telegram) SendImage(_ context.Context, phone, path, caption string) error {
	chatID, ok := t.contacts.Resolve(phone)
	if !ok {
		return fmt.Errorf("notify: no chat registered for %s", phone)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := t.api.Send(photo); err != nil {
		return fmt.Errorf("notify: send image: %w", err)
	}
	return nil
}

// Alert goes straight to the operator chat, bypassing the contact registry.
func (t *Telegram) Alert(_ context.Context, text string) error {
	if _, err := t.api.Send(tgbotapi.NewMessage(t.adminChat, text)); err != nil {
		return fmt.Errorf("notify: alert: %w", err)
	}
	return nil
}
