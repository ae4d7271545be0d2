package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"placewatch/internal/geo"
	"placewatch/internal/model"
	"placewatch/internal/storage"
)

const (
	defaultDue    = 10
	maxDue        = 50
	historyLength = 5
	outcomeLength = 10
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Placewatch!

Track places and follow their reviews over time.

Quick start:
1. /add <url> [name] — track a place
2. /due — see which places are visited next
3. /info <url> — place details

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Places:
/add <url> [name] — track a new place
/due [n] — places waiting longest for a visit
/info <url> — place details and review count history
/summary <url> — generated summary of the reviews
/history <url> — recent visits and their outcome

Overview:
/stats — totals across all places`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	locator, name, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /add <url> [name]\n%v", err))
		return
	}

	if existing, err := b.store.GetTarget(ctx, locator); err == nil {
		b.reply(chatID, fmt.Sprintf("Already tracking %s.", displayName(existing)))
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	t := &model.Target{ID: locator, DisplayName: name}
	if lat, lon, ok := geo.CoordinatesFromLocator(locator); ok {
		t.Latitude, t.Longitude = &lat, &lon
		if b.zones != nil {
			if z, ok := b.zones.AssignZone(lat, lon); ok {
				t.Zone = z.Name
				t.Riverside = &z.Riverside
			}
		}
	}
	if err := b.store.UpsertTarget(ctx, t); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save place: %v", err))
		return
	}

	msg := fmt.Sprintf("Place added: %s\nIt will be visited on the next crawl run.", displayName(t))
	if t.Zone != "" {
		msg += fmt.Sprintf("\nZone: %s", t.Zone)
	}
	b.reply(chatID, msg)
}

func (b *Bot) handleDue(ctx context.Context, chatID int64, args string) {
	n, err := ParseLimitArg(args, defaultDue, maxDue)
	if err != nil {
		b.reply(chatID, "Usage: /due [n]")
		return
	}
	targets, err := b.store.ListDueTargets(ctx, n)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatDueList(targets))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	locator, err := ParseLocatorArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <url>")
		return
	}
	t, ok := b.lookup(ctx, chatID, locator)
	if !ok {
		return
	}

	latest, err := b.store.LatestOutcome(ctx, t.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.log.Error("latest outcome", "target_id", t.ID, "error", err)
	}
	history, err := b.store.ListCountHistory(ctx, t.ID, historyLength)
	if err != nil {
		b.log.Error("count history", "target_id", t.ID, "error", err)
	}

	msg := tgbotapi.NewMessage(chatID, FormatTargetInfo(t, latest, history))
	msg.DisableWebPagePreview = true
	key := targetKey(t.ID)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Summary", cmdSummary+":"+key),
			tgbotapi.NewInlineKeyboardButtonData("Visits", cmdHistory+":"+key),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send info", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64, args string) {
	locator, err := ParseLocatorArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /summary <url>")
		return
	}
	if t, ok := b.lookup(ctx, chatID, locator); ok {
		b.reply(chatID, FormatSummary(t))
	}
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args string) {
	locator, err := ParseLocatorArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /history <url>")
		return
	}
	t, ok := b.lookup(ctx, chatID, locator)
	if !ok {
		return
	}
	b.replyOutcomes(ctx, chatID, t)
}

func (b *Bot) replyOutcomes(ctx context.Context, chatID int64, t *model.Target) {
	outcomes, err := b.store.ListOutcomes(ctx, t.ID, outcomeLength)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatOutcomes(t, outcomes))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	s, err := b.store.Stats(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(s))
}

// lookup fetches a place, replying on failure.
func (b *Bot) lookup(ctx context.Context, chatID int64, locator string) (*model.Target, bool) {
	t, err := b.store.GetTarget(ctx, locator)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Place not found. Use /add <url> to track it.")
		return nil, false
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return nil, false
	}
	return t, true
}
