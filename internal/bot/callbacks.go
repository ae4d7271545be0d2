package bot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"placewatch/internal/model"
	"placewatch/internal/storage"
)

const (
	cmdSummary = "summary"
	cmdHistory = "history"
)

// targetKey shortens a locator to fit Telegram's 64-byte callback data.
func targetKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, key, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}

	b.log.Info("callback",
		"action", action,
		"key", key,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	t, err := b.targetByKey(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Place not found.")
		return
	}
	if err != nil {
		b.log.Error("resolve callback target", "key", key, "error", err)
		return
	}

	switch action {
	case cmdSummary:
		b.reply(chatID, FormatSummary(t))
	case cmdHistory:
		b.replyOutcomes(ctx, chatID, t)
	}
}

// targetByKey resolves a callback key. It returns storage.ErrNotFound when
// no tracked place hashes to key.
func (b *Bot) targetByKey(ctx context.Context, key string) (*model.Target, error) {
	targets, err := b.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	for i := range targets {
		if targetKey(targets[i].ID) == key {
			return &targets[i], nil
		}
	}
	return nil, fmt.Errorf("callback key %s: %w", key, storage.ErrNotFound)
}
