package utils

import (
	"fmt"
	"log"
	"net/http"
)

// RespondPage writes a minimal HTML page, used by the loopback server
// that terminates the browser login flow.
func RespondPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	page := fmt.Sprintf("<html><head><title>%s</title></head><body><h2>%s</h2><p>%s</p></body></html>", title, title, body)
	if _, err := w.Write([]byte(page)); err != nil {
		log.Printf("failed to write response page: %v", err)
	}
}

// RespondErrorPage writes an HTML error page.
func RespondErrorPage(w http.ResponseWriter, status int, message string) {
	RespondPage(w, status, "Login failed", message)
}
