package schedule

import (
	"fmt"
	"strings"
	"time"
)

var industryPrefixes = map[string]string{
	"salon":      "SAL",
	"barbershop": "BAR",
	"clinic":     "CLI",
	"spa":        "SPA",
}

// CodePrefix префикс кода записи по отрасли организации
func CodePrefix(industry string) string {
	if p, ok := industryPrefixes[strings.ToLower(strings.TrimSpace(industry))]; ok {
		return p
	}
	return "APT"
}

// FormatCode собирает код вида SAL-250615-003; seq последовательный в пределах дня и организации
func FormatCode(industry string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", CodePrefix(industry), day.Format("060102"), seq)
}
