package api

import (
	"crypto/subtle"
	"net/http"
)

// requireKey enforces API-key authentication on a mutating endpoint.
//
// Behaviour:
//   - If mode != "apikey" or no key is configured, all calls are allowed
//     (pass-through).
//   - Otherwise the value of the configured header is compared to the key in
//     constant time; a missing or incorrect key returns 401.
func (h *Handler) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := h.opts.Auth
		key := auth.Key()
		if auth.Mode != "apikey" || key == "" {
			next(w, r)
			return
		}

		got := r.Header.Get(auth.EffectiveHeader())
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}
