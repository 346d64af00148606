package formatting

import (
	"fmt"
	"time"
)

// FormatDateTime форматирует дату и время
func FormatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

// FormatDate форматирует только дату
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

// FormatTime форматирует только время
func FormatTime(t time.Time) string {
	return t.Format("15:04")
}

// FormatTimeRange форматирует диапазон времени
func FormatTimeRange(start, end time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("15:04"), end.Format("15:04"))
}

// FormatDuration форматирует длительность в минутах
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

// GetWeekdayShortName возвращает краткое название дня недели на русском
func GetWeekdayShortName(weekday time.Weekday) string {
	names := []string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	if int(weekday) >= 0 && int(weekday) < len(names) {
		return names[weekday]
	}
	return "?"
}

// RelativeTime описывает момент t относительно now: "через 40 минут", "сегодня в 15:00",
// "завтра в 10:00", "через 3 дня", "вчера в 18:00", "2 дня назад".
// t приводится к часовому поясу now.
func RelativeTime(t, now time.Time) string {
	t = t.In(now.Location())
	days := dayDiff(t, now)
	clock := FormatTime(t)

	if !t.Before(now) {
		until := t.Sub(now)
		switch {
		case until < time.Hour:
			mins := int(until.Minutes())
			if mins == 0 {
				return "сейчас"
			}
			return fmt.Sprintf("через %d %s", mins, PluralizeMinutes(mins))
		case days == 0:
			return "сегодня в " + clock
		case days == 1:
			return "завтра в " + clock
		case days == 2:
			return "послезавтра в " + clock
		case days < 7:
			return fmt.Sprintf("через %d %s, %s в %s", days, PluralizeDays(days), GetWeekdayShortName(t.Weekday()), clock)
		default:
			return fmt.Sprintf("%s в %s", FormatDate(t), clock)
		}
	}

	switch {
	case days == 0:
		return "сегодня в " + clock
	case days == -1:
		return "вчера в " + clock
	default:
		return fmt.Sprintf("%d %s назад", -days, PluralizeDays(-days))
	}
}

func dayDiff(t, now time.Time) int {
	a := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}

// FormatBytes форматирует размер в байтах: 512 Б, 8.0 КБ, 1.5 МБ
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d Б", n)
	}
	units := []string{"КБ", "МБ", "ГБ", "ТБ"}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}
