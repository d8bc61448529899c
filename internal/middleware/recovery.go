// File: internal/middleware/recovery.go
package middleware

import (
	"log"
	"net/http"
)

// RecoverPanic converts handler panics into a 500 instead of killing the
// connection goroutine.
func RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %s %s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("Connection", "close")
				http.Error(w, "Something went wrong on our end.", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
