package handlers

import (
	"net/http"

	"forge/internal/middleware"
)

// User-facing failure messages by locale. Machine-readable error codes stay
// English; only the message field localizes.
var localizedMessages = map[string]map[string]string{
	"insufficient_credits": {
		"en": "not enough credits for this job",
		"id": "kredit tidak cukup untuk pekerjaan ini",
		"es": "créditos insuficientes para este trabajo",
	},
	"unauthorized": {
		"en": "missing account reference",
		"id": "referensi akun tidak ditemukan",
		"es": "falta la referencia de cuenta",
	},
}

func (a *App) localized(r *http.Request, code string) string {
	msgs, ok := localizedMessages[code]
	if !ok {
		return code
	}
	locale := middleware.LocaleFromContext(r.Context())
	if msg, ok := msgs[locale]; ok {
		return msg
	}
	return msgs["en"]
}
