package client

import (
	"context"
	stdtls "crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// StepResult holds the timing and outcome of one request of the chain.
type StepResult struct {
	Name                 string        `json:"name"`
	Method               string        `json:"method"`
	URL                  string        `json:"url"`
	FinalURL             string        `json:"final_url,omitempty"`
	StartTime            time.Time     `json:"start_time"`
	DNSDone              time.Duration `json:"dns_done"`
	ConnectDone          time.Duration `json:"connect_done"`
	TLSHandshakeDone     time.Duration `json:"tls_done"`
	GotFirstResponseByte time.Duration `json:"ttfb"`
	TotalDuration        time.Duration `json:"total_duration"`
	StatusCode           int           `json:"status_code"`
	Protocol             string        `json:"protocol"`
	ConnectionReused     bool          `json:"connection_reused"`
	Error                string        `json:"error,omitempty"`
}

// page is a fully read response.
type page struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

// trackingJar remembers, in order, every URL the session touched and every
// explicit Path a cookie was scoped to, so the whole jar can be flattened
// even though cookiejar only answers per URL.
type trackingJar struct {
	*cookiejar.Jar

	mu   sync.Mutex
	urls []*url.URL
}

func newTrackingJar() (*trackingJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &trackingJar{Jar: jar}, nil
}

func (j *trackingJar) track(u *url.URL) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.urls = append(j.urls, u)
}

func (j *trackingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.Jar.SetCookies(u, cookies)
	for _, ck := range cookies {
		if ck.Path != "" {
			j.track(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: ck.Path})
		}
	}
}

func (j *trackingJar) tracked() []*url.URL {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*url.URL(nil), j.urls...)
}

// session is the cookie-carrying HTTP/1.1 client of the traversal phase.
type session struct {
	client *http.Client
	jar    *trackingJar
}

const maxRedirects = 10

func newSession(dialer proxy.ContextDialer, rootCAs *x509.CertPool, timeout time.Duration) (*session, error) {
	jar, err := newTrackingJar()
	if err != nil {
		return nil, err
	}
	s := &session{jar: jar}
	s.client = &http.Client{
		Transport: newTraversalTransport(dialer, rootCAs),
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			jar.track(req.URL)
			return nil
		},
	}
	return s, nil
}

// Close releases the traversal connections.
func (s *session) Close() {
	s.client.CloseIdleConnections()
}

// get performs one traversal GET and records every URL it touched so the
// cookies set along redirects can be collected later.
func (s *session) get(ctx context.Context, name, rawURL string, headers map[string]string) (*page, StepResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, StepResult{Name: name, Method: http.MethodGet, URL: rawURL, Error: err.Error()}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.jar.track(req.URL)
	return execute(s.client, req, name)
}

// Cookies flattens the jar into one name->value set across every visited
// host and every cookie path seen. Later values win, first-seen order is
// kept. Expired and rejected cookies stay out since the jar is asked.
func (s *session) Cookies() []*http.Cookie {
	index := make(map[string]int)
	var out []*http.Cookie
	for _, u := range s.jar.tracked() {
		for _, ck := range s.jar.Cookies(u) {
			if i, ok := index[ck.Name]; ok {
				out[i].Value = ck.Value
				continue
			}
			index[ck.Name] = len(out)
			out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
		}
	}
	return out
}

// newSubmitClient builds the HTTP/2 client of the final POST, preloaded with
// the transplanted cookies for target's host.
func newSubmitClient(dialer proxy.ContextDialer, rootCAs *x509.CertPool, timeout time.Duration, cookies []*http.Cookie, target *url.URL) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	jar.SetCookies(target, cookies)

	return &http.Client{
		Transport: newSubmitTransport(dialer, rootCAs),
		Timeout:   timeout,
		Jar:       jar,
	}, nil
}

// execute runs req on c with an httptrace attached, reads and decodes the
// body and fills a StepResult. On transport failure the StepResult carries
// the error text and the returned page is nil. A body that cannot be
// decoded still yields a page holding the raw bytes.
func execute(c *http.Client, req *http.Request, name string) (*page, StepResult, error) {
	var dnsDone, connDone, tlsDone, firstByte time.Time
	var reused bool

	trace := &httptrace.ClientTrace{
		DNSDone:              func(_ httptrace.DNSDoneInfo) { dnsDone = time.Now() },
		ConnectDone:          func(_, _ string, _ error) { connDone = time.Now() },
		TLSHandshakeDone:     func(_ stdtls.ConnectionState, _ error) { tlsDone = time.Now() },
		GotFirstResponseByte: func() { firstByte = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			reused = info.Reused
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start := time.Now()
	resp, err := c.Do(req)

	step := StepResult{
		Name:      name,
		Method:    req.Method,
		URL:       req.URL.String(),
		StartTime: start,
	}
	finish := func() {
		since := func(t time.Time) time.Duration {
			if t.IsZero() {
				return 0
			}
			return t.Sub(start)
		}
		step.TotalDuration = time.Since(start)
		step.DNSDone = since(dnsDone)
		step.ConnectDone = since(connDone)
		step.TLSHandshakeDone = since(tlsDone)
		step.GotFirstResponseByte = since(firstByte)
		step.ConnectionReused = reused
	}

	if err != nil {
		finish()
		step.Error = err.Error()
		return nil, step, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	finish()
	step.StatusCode = resp.StatusCode
	step.Protocol = resp.Proto
	step.FinalURL = resp.Request.URL.String()
	if err != nil {
		step.Error = err.Error()
		if body == nil {
			return nil, step, fmt.Errorf("reading %s body: %w", name, err)
		}
	}

	p := &page{
		URL:         resp.Request.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if err != nil {
		return p, step, fmt.Errorf("reading %s body: %w", name, err)
	}
	return p, step, nil
}

// postForm sends an urlencoded body on c.
func postForm(ctx context.Context, c *http.Client, name, rawURL, body string, headers map[string]string) (*page, StepResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(body))
	if err != nil {
		return nil, StepResult{Name: name, Method: http.MethodPost, URL: rawURL, Error: err.Error()}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return execute(c, req, name)
}
