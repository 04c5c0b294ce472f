package client

import (
	"log"
	"net/http"
)

// DebugCookies logs the cookies being carried into the submit client.
func DebugCookies(logger *log.Logger, label string, cookies []*http.Cookie) {
	logger.Printf("Cookies %s (%d):", label, len(cookies))
	for _, ck := range cookies {
		logger.Printf(" - %s = %s", ck.Name, ck.Value)
	}
}
