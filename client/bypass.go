package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
)

// Result describes one bypass attempt. Bypass always returns a non-nil
// Result; on failure it holds whatever ran before the error.
type Result struct {
	Target  string
	LinkID  string
	URL     string
	Tokens  Tokens
	Steps   []StepResult
	Elapsed time.Duration
}

// Bypasser walks the vshort.xyz chain for one link at a time. It holds no
// state between calls: each Bypass builds and releases its own clients.
type Bypasser struct {
	cfg Config
	fp  Fingerprint
	log *log.Logger
}

// New returns a Bypasser for cfg, filling zero fields from DefaultConfig.
func New(cfg Config) (*Bypasser, error) {
	cfg = cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Bypasser{
		cfg: cfg,
		fp:  Fingerprint{UserAgent: cfg.UserAgent},
		log: cfg.Logger,
	}, nil
}

// LinkID returns the shortener id of rawURL: its path without surrounding
// slashes.
func LinkID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", newError(KindInvalidInput, "parse", err)
	}
	id := strings.Trim(u.Path, "/")
	if id == "" {
		return "", newError(KindInvalidInput, "parse", errNoLinkID)
	}
	return id, nil
}

// Run is Bypass with console reporting. It returns the destination URL and
// true on success, and "", false on any failure after printing why.
func (b *Bypasser) Run(ctx context.Context, rawURL string) (string, bool) {
	b.log.Printf("Starting hybrid HTTP/1.1 -> HTTP/2 bypass for: %s", rawURL)

	res, err := b.Bypass(ctx, rawURL)

	report := NewRunReport(res, err, proxyLabel(b.cfg.ProxyURL))
	PrintRunReport(b.cfg.Out, report)
	if b.cfg.RunLogPath != "" {
		if werr := WriteStructuredLog(report, b.cfg.RunLogPath); werr != nil {
			b.log.Printf("Warning: could not write run log %s: %v", b.cfg.RunLogPath, werr)
		}
	}

	if err != nil {
		return "", false
	}
	return res.URL, true
}

// Bypass performs the full chain: three GETs on an HTTP/1.1 session, token
// extraction, and the /links/go POST on a separate HTTP/2-preferring client
// carrying the session's cookies. Errors are *Error values; use KindOf to branch.
func (b *Bypasser) Bypass(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()
	res := &Result{Target: rawURL}
	defer func() { res.Elapsed = time.Since(start) }()

	id, err := LinkID(rawURL)
	if err != nil {
		return res, err
	}
	res.LinkID = id

	dialer, err := newDialer(b.cfg.ProxyURL)
	if err != nil {
		return res, newError(KindTransport, "dial", err)
	}

	sess, err := newSession(dialer, b.cfg.rootCAs, b.cfg.TraversalTimeout)
	if err != nil {
		return res, newError(KindTransport, "session", err)
	}
	defer sess.Close()

	ep := b.cfg.Endpoints

	if _, err := b.traverse(ctx, sess, res, "root", ep.rootURL(), ""); err != nil {
		return res, err
	}
	if _, err := b.traverse(ctx, sess, res, "intermediate", ep.intermediateURL(id), rawURL); err != nil {
		return res, err
	}
	landing, err := b.traverse(ctx, sess, res, "landing", ep.landingURL(id), ep.syntheticReferer(id))
	if err != nil {
		return res, err
	}

	html := decodeText(landing.Body, landing.ContentType)
	res.Tokens = ExtractTokens(html)
	if res.Tokens.AdFormData == "" {
		return res, newError(KindTokenExtraction, "landing",
			fmt.Errorf("%w: %s", errNoAdFormData, describeLanding(html)))
	}
	b.log.Printf("Tokens extracted (csrf=%t fields=%t unlocked=%t)",
		res.Tokens.CSRFToken != "", res.Tokens.TokenFields != "", res.Tokens.TokenUnlocked != "")

	submitURL, err := url.Parse(ep.submitURL())
	if err != nil {
		return res, newError(KindInvalidInput, "submit", err)
	}

	cookies := sess.Cookies()
	DebugCookies(b.log, "transplanted to HTTP/2 client", cookies)

	submit, err := newSubmitClient(dialer, b.cfg.rootCAs, b.cfg.SubmitTimeout, cookies, submitURL)
	if err != nil {
		return res, newError(KindTransport, "submit", err)
	}
	defer submit.CloseIdleConnections()

	headers := b.fp.XHRHeaders(ep.Primary, landing.URL.String())
	reply, step, err := postForm(ctx, submit, "submit", submitURL.String(), res.Tokens.Form(), headers)
	res.Steps = append(res.Steps, step)
	b.logStep(step)
	if err != nil {
		if errors.Is(err, errUndecodableBody) && reply != nil {
			return res, &Error{
				Kind: KindResponseFormat,
				Op:   "submit",
				Err:  err,
				Body: truncateRunes(string(reply.Body), 300),
			}
		}
		return res, newError(KindTransport, "submit", err)
	}

	dest, err := interpretReply(reply.Body)
	if err != nil {
		return res, err
	}
	res.URL = dest
	return res, nil
}

// traverse issues one GET of the traversal phase with the navigation
// headers and an optional Referer.
func (b *Bypasser) traverse(ctx context.Context, sess *session, res *Result, name, rawURL, referer string) (*page, error) {
	headers := b.fp.NavigationHeaders()
	if referer != "" {
		headers["Referer"] = referer
	}

	p, step, err := sess.get(ctx, name, rawURL, headers)
	res.Steps = append(res.Steps, step)
	b.logStep(step)
	if err != nil {
		return nil, newError(KindTransport, name, err)
	}
	return p, nil
}

func (b *Bypasser) logStep(step StepResult) {
	if step.Error != "" {
		b.log.Printf("[%s] %s %s failed after %d ms: %s",
			step.Name, step.Method, step.URL, step.TotalDuration.Milliseconds(), step.Error)
		return
	}
	b.log.Printf("[%s] %s %s -> %d (%s, %d ms)",
		step.Name, step.Method, step.URL, step.StatusCode, step.Protocol, step.TotalDuration.Milliseconds())
	if sig := blockSignal(step); sig != "" {
		b.log.Printf("Warning: %s", sig)
	}
}

// interpretReply reads the /links/go JSON reply.
func interpretReply(body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", &Error{
			Kind: KindResponseFormat,
			Op:   "submit",
			Err:  fmt.Errorf("final response not JSON: %w", err),
			Body: truncateRunes(string(body), 300),
		}
	}

	obj, ok := v.(map[string]any)
	if !ok || obj["status"] != "success" {
		var status any
		if ok {
			status = obj["status"]
		}
		return "", &Error{
			Kind: KindRemoteRejection,
			Op:   "submit",
			Err:  fmt.Errorf("%w (status %v)", errNotSuccess, status),
			Body: strings.TrimSpace(string(body)),
		}
	}

	dest, _ := obj["url"].(string)
	if dest == "" {
		return "", &Error{
			Kind: KindResponseFormat,
			Op:   "submit",
			Err:  errMissingURL,
			Body: strings.TrimSpace(string(body)),
		}
	}
	return dest, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
