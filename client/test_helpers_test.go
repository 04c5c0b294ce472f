package client

import (
	"crypto/x509"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
)

const (
	testTarget    = "https://vshort.xyz/AbC123"
	testLinkID    = "AbC123"
	testSecondary = "https://finance.example.test"
)

const landingHTML = `<!DOCTYPE html>
<html><head><title>Your link is almost ready</title></head>
<body>
<form method="post" accept-charset="utf-8" id="go-link" action="/links/go">
<div style="display:none;"><input type="hidden" name="_method" value="POST"/><input type="hidden" name="_csrfToken" autocomplete="off" value="csrf-123"/></div>
<input type="hidden" name="ad_form_data" value="adf-XYZ=="/>
<div style="display:none;"><input type="hidden" name="_Token[fields]" autocomplete="off" value="fields%3Aabc"/><input type="hidden" name="_Token[unlocked]" autocomplete="off" value="adcopy_challenge%7Cg-recaptcha-response"/></div>
<button class="btn btn-success btn-lg get-link disabled">Please wait...</button>
</form>
</body></html>`

// capturedPost is what the fake /links/go endpoint saw.
type capturedPost struct {
	ProtoMajor int
	Header     http.Header
	Cookies    map[string]string
	Form       map[string]string
}

// fakeShortener serves the primary host over TLS and the intermediate ad
// host in cleartext. The intermediate is addressed as localhost so its
// cookies live on a different host than the primary's 127.0.0.1.
type fakeShortener struct {
	primary      *httptest.Server
	intermediate *httptest.Server

	calls atomic.Int32
	posts atomic.Int32

	mu                  sync.Mutex
	landing             string
	reply               string
	replyEncoding       string
	intermediateReferer string
	landingReferer      string
	landingEncoding     string
	post                *capturedPost
}

// newFakeShortener starts a primary that negotiates h2 through ALPN.
func newFakeShortener(t *testing.T) *fakeShortener {
	return startFakeShortener(t, true)
}

// newHTTP1Shortener starts a primary that only speaks HTTP/1.1.
func newHTTP1Shortener(t *testing.T) *fakeShortener {
	return startFakeShortener(t, false)
}

func startFakeShortener(t *testing.T, enableHTTP2 bool) *fakeShortener {
	t.Helper()
	f := &fakeShortener{
		landing: landingHTML,
		reply:   `{"status":"success","message":"","url":"https://example.com/final"}`,
	}

	f.primary = httptest.NewUnstartedServer(http.HandlerFunc(f.servePrimary))
	f.primary.EnableHTTP2 = enableHTTP2
	f.primary.StartTLS()
	f.intermediate = httptest.NewServer(http.HandlerFunc(f.serveIntermediate))
	t.Cleanup(func() {
		f.primary.Close()
		f.intermediate.Close()
	})
	return f
}

func (f *fakeShortener) setLanding(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.landing = html
}

func (f *fakeShortener) setReply(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = body
}

func (f *fakeShortener) lastPost() *capturedPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.post
}

func (f *fakeShortener) servePrimary(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/":
		http.SetCookie(w, &http.Cookie{Name: "AppSession", Value: "root-session", Path: "/"})
		io.WriteString(w, "<html><title>vshort</title></html>")

	case r.URL.Path == "/links/go":
		f.posts.Add(1)
		_ = r.ParseForm()
		cp := &capturedPost{
			ProtoMajor: r.ProtoMajor,
			Header:     r.Header.Clone(),
			Cookies:    map[string]string{},
			Form:       map[string]string{},
		}
		for _, ck := range r.Cookies() {
			cp.Cookies[ck.Name] = ck.Value
		}
		for k := range r.PostForm {
			cp.Form[k] = r.PostForm.Get(k)
		}
		f.post = cp
		w.Header().Set("Content-Type", "application/json")
		if f.replyEncoding != "" {
			w.Header().Set("Content-Encoding", f.replyEncoding)
		}
		io.WriteString(w, f.reply)

	case r.URL.Path == "/moved":
		http.Redirect(w, r, "/landing/moved", http.StatusFound)

	default:
		f.landingReferer = r.Header.Get("Referer")
		http.SetCookie(w, &http.Cookie{Name: "csrfToken", Value: "cookie-csrf", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "go_gate", Value: "landing-gate", Path: "/links"})
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		if f.landingEncoding == "gzip" && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			io.WriteString(gz, f.landing)
			gz.Close()
			return
		}
		io.WriteString(w, f.landing)
	}
}

func (f *fakeShortener) serveIntermediate(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.mu.Lock()
	f.intermediateReferer = r.Header.Get("Referer")
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "ab", Value: "2short-" + r.URL.Query().Get("link"), Path: "/"})
	io.WriteString(w, "<html>ad</html>")
}

// intermediateURL is the intermediate server addressed by name instead of IP.
func (f *fakeShortener) intermediateURL() string {
	return strings.Replace(f.intermediate.URL, "127.0.0.1", "localhost", 1)
}

func (f *fakeShortener) config() Config {
	roots := x509.NewCertPool()
	roots.AddCert(f.primary.Certificate())
	return Config{
		Endpoints: Endpoints{
			Primary:      f.primary.URL,
			Intermediate: f.intermediateURL(),
			Secondary:    testSecondary,
		},
		Logger:  log.New(io.Discard, "", 0),
		Out:     io.Discard,
		rootCAs: roots,
	}
}

func newTestBypasser(t *testing.T, cfg Config) *Bypasser {
	t.Helper()
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}
