package client

// ChromeUserAgent is sent on every request of a run, GETs and POST alike.
const ChromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fingerprint produces the fixed browser header sets used during a run.
type Fingerprint struct {
	UserAgent string
}

// NavigationHeaders returns the headers of a top-level page load.
func (f Fingerprint) NavigationHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                f.UserAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Upgrade-Insecure-Requests": "1",
		"Connection":                "keep-alive",
	}
}

// XHRHeaders returns the headers of the jQuery form POST to /links/go.
func (f Fingerprint) XHRHeaders(origin, referer string) map[string]string {
	return map[string]string{
		"User-Agent":       f.UserAgent,
		"Origin":           origin,
		"Referer":          referer,
		"X-Requested-With": "XMLHttpRequest",
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Accept-Language":  "en-US,en;q=0.9",
		"Accept-Encoding":  "gzip, deflate, br",
	}
}
