package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_core/internal/formatting"
	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier отправляет операторам уведомления о записях в чат
type TelegramNotifier struct {
	sender messageSender
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{sender: b, chatID: chatID}, nil
}

// Publish отправляет сообщение только для событий, интересных операторам
func (n *TelegramNotifier) Publish(ctx context.Context, ev model.SystemEvent) error {
	text, ok := renderEvent(ev)
	if !ok {
		return nil
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}

	return nil
}

func renderEvent(ev model.SystemEvent) (string, bool) {
	code, _ := ev.Metadata["code"].(string)
	code = html.EscapeString(code)

	var sb strings.Builder
	switch ev.EventType {
	case model.EventAppointmentCreated:
		fmt.Fprintf(&sb, "📅 <b>Новая запись %s</b>", code)
		writeStart(&sb, ev.Metadata)
		if name, _ := ev.Metadata["service_name"].(string); name != "" {
			sb.WriteString("\n✂️ " + html.EscapeString(name))
			if minutes, ok := ev.Metadata["duration"].(int); ok {
				sb.WriteString(", " + formatting.FormatDuration(minutes))
			}
		}
		if origin, _ := ev.Metadata["origin"].(model.AppointmentOrigin); origin == model.OriginAutomatic {
			sb.WriteString("\n🤖 Через ассистента")
		}
	case model.EventAppointmentModified:
		fmt.Fprintf(&sb, "🔄 <b>Запись %s перенесена</b>", code)
		if prev, ok := ev.Metadata["previous_start"].(time.Time); ok {
			sb.WriteString("\nБыло: " + formatting.FormatDateTime(prev))
		}
		writeStart(&sb, ev.Metadata)
	case model.EventAppointmentCancelled:
		fmt.Fprintf(&sb, "❌ <b>Запись %s отменена</b>", code)
		writeStart(&sb, ev.Metadata)
		if reason, _ := ev.Metadata["reason"].(string); reason != "" {
			sb.WriteString("\nПричина: " + html.EscapeString(reason))
		}
	case model.EventSlotHoldsReclaimed:
		count, _ := ev.Metadata["count"].(int)
		fmt.Fprintf(&sb, "♻️ Освобождено %d %s после истечения удержания", count, formatting.PluralizeSlots(count))
	default:
		return "", false
	}

	return sb.String(), true
}

func writeStart(sb *strings.Builder, metadata map[string]any) {
	start, ok := metadata["starts_at"].(time.Time)
	if !ok {
		return
	}
	if end, ok := metadata["ends_at"].(time.Time); ok {
		sb.WriteString("\n🕐 " + formatting.FormatDate(start) + " " + formatting.FormatTimeRange(start, end))
		return
	}
	sb.WriteString("\n🕐 " + formatting.FormatDateTime(start))
}
