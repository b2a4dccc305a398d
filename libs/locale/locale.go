// Package locale formats dates for user-facing text in the languages hourbook speaks.
package locale

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

type Locale string

const (
	PtBR Locale = "pt-BR"
	EN   Locale = "en"
)

// Parse accepts "pt-BR", "pt_br", "en", "en-US" and friends. Anything else is pt-BR.
func Parse(raw string) Locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "en" || strings.HasPrefix(raw, "en-") || strings.HasPrefix(raw, "en_") {
		return EN
	}
	return PtBR
}

// FormatSlot renders an appointment time as a day phrase, e.g. "dia 10 de janeiro às 10:00" or
// "January 10 at 10:00". t is formatted in its own location. Hours are not zero padded.
func FormatSlot(t time.Time, l Locale) string {
	switch l {
	case EN:
		return fmt.Sprintf("%s at %d:%02d", monday.Format(t, "January 2", monday.LocaleEnUS), t.Hour(), t.Minute())
	default:
		return fmt.Sprintf("dia %s às %d:%02d", monday.Format(t, "02 de January", monday.LocalePtBR), t.Hour(), t.Minute())
	}
}
