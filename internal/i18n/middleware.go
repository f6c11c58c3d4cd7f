package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware negotiates the response language from Accept-Language, falling
// back to lang, and announces it in Content-Language.
func Middleware(lang string) func(http.Handler) http.Handler {
	def := language.Make(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := negotiate(r.Header.Get("Accept-Language"), def)
			w.Header().Set("Content-Language", tag.String())
			next.ServeHTTP(w, r.WithContext(WithLanguage(r.Context(), tag)))
		})
	}
}
