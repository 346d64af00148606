package schedule

import (
	"strings"
	"time"
)

type Shift string

const (
	ShiftAny       Shift = "any"
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
)

// ClockWindow полуоткрытый интервал времени суток [Start, End), смещения от полуночи
type ClockWindow struct {
	Start time.Duration
	End   time.Duration
}

var (
	morningWindow   = ClockWindow{Start: 6 * time.Hour, End: 12 * time.Hour}
	afternoonWindow = ClockWindow{Start: 12 * time.Hour, End: 21 * time.Hour}
)

// Contains проверяет, попадает ли время суток t в окно
func (w ClockWindow) Contains(t time.Time) bool {
	clock := sinceMidnight(t)
	return clock >= w.Start && clock < w.End
}

// Resolution результат разбора выражения даты и смены
type Resolution struct {
	Date       time.Time    // полночь дня в часовом поясе now
	Shift      Shift
	Window     *ClockWindow // nil = весь день
	Recognized bool         // false, если выражение не распознано и подставлено "сегодня"
}

// DayBounds возвращает [начало дня, начало следующего дня)
func (r Resolution) DayBounds() (time.Time, time.Time) {
	return r.Date, r.Date.AddDate(0, 0, 1)
}

// Resolve превращает выражение даты и смену в конкретный день и окно времени.
// Нераспознанная дата даёт "сегодня" с Recognized=false.
func Resolve(dateExpr, shiftToken string, now time.Time) Resolution {
	date, ok := ResolveDate(dateExpr, now)
	shift, window := ResolveShift(shiftToken)
	return Resolution{
		Date:       date,
		Shift:      shift,
		Window:     window,
		Recognized: ok,
	}
}

// ResolveDate разбирает "today", "tomorrow", "day after tomorrow" (и русские аналоги),
// YYYY-MM-DD и DD.MM.YYYY
func ResolveDate(expr string, now time.Time) (time.Time, bool) {
	today := startOfDay(now)

	switch normalize(expr) {
	case "today", "сегодня":
		return today, true
	case "tomorrow", "завтра":
		return today.AddDate(0, 0, 1), true
	case "day after tomorrow", "the day after tomorrow", "послезавтра":
		return today.AddDate(0, 0, 2), true
	}

	trimmed := strings.TrimSpace(expr)
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		if t, err := time.ParseInLocation(layout, trimmed, now.Location()); err == nil {
			return t, true
		}
	}

	return today, false
}

// ResolveShift возвращает смену и окно; пустой или неизвестный токен означает любое время
func ResolveShift(token string) (Shift, *ClockWindow) {
	switch normalize(token) {
	case "morning", "утро", "утром":
		w := morningWindow
		return ShiftMorning, &w
	case "afternoon", "evening", "день", "днём", "днем", "вечер", "вечером", "после обеда":
		w := afternoonWindow
		return ShiftAfternoon, &w
	default:
		return ShiftAny, nil
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sinceMidnight(t time.Time) time.Duration {
	return t.Sub(startOfDay(t))
}
