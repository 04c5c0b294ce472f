package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// RunReport holds everything printed after a run and written to the run log.
type RunReport struct {
	Time    time.Time `json:"time"`
	Target  string    `json:"target"`
	LinkID  string    `json:"link_id,omitempty"`
	Network string    `json:"network"`

	Steps []StepResult `json:"steps"`

	// Presence of each token, never the values.
	TokensFound map[string]bool `json:"tokens_found,omitempty"`

	Success   bool          `json:"success"`
	URL       string        `json:"url,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Body      string        `json:"body,omitempty"`
	Issues    []string      `json:"observed_issues,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// NewRunReport summarises the outcome of Bypass.
func NewRunReport(res *Result, err error, network string) RunReport {
	r := RunReport{
		Time:    time.Now(),
		Network: network,
	}
	if res != nil {
		r.Target = res.Target
		r.LinkID = res.LinkID
		r.Steps = res.Steps
		r.Elapsed = res.Elapsed
		r.URL = res.URL
		r.Issues = observedIssues(res.Steps)
		if res.LinkID != "" && hasStep(res.Steps, "landing") {
			r.TokensFound = map[string]bool{
				FieldCSRFToken:     res.Tokens.CSRFToken != "",
				FieldAdFormData:    res.Tokens.AdFormData != "",
				FieldTokenFields:   res.Tokens.TokenFields != "",
				FieldTokenUnlocked: res.Tokens.TokenUnlocked != "",
			}
		}
	}
	if err != nil {
		r.ErrorKind = KindOf(err).String()
		r.Error = err.Error()
		var be *Error
		if errors.As(err, &be) {
			r.Body = be.Body
		}
	} else {
		r.Success = true
	}
	return r
}

func hasStep(steps []StepResult, name string) bool {
	for _, s := range steps {
		if s.Name == name && s.Error == "" {
			return true
		}
	}
	return false
}

// diagnostic is the one-line failure message shown next to the ❌ marker.
func (r RunReport) diagnostic() string {
	switch r.ErrorKind {
	case KindInvalidInput.String():
		return "Invalid URL: " + r.Error
	case KindTokenExtraction.String():
		return "ad_form_data not found, aborting. " + r.Error
	case KindResponseFormat.String():
		if r.Body != "" {
			return "final response not usable: " + r.Body
		}
		return "final response not usable: " + r.Error
	case KindRemoteRejection.String():
		return "Server returned: " + r.Body
	default:
		return "Exception: " + r.Error
	}
}

// PrintRunReport writes the colored step table and the result markers to w.
func PrintRunReport(w io.Writer, r RunReport) {
	headerColor := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	sectionColor := color.New(color.FgHiYellow).SprintFunc()
	labelColor := color.New(color.FgWhite).SprintFunc()
	valueColor := color.New(color.FgHiWhite).SprintFunc()
	successColor := color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor := color.New(color.FgRed, color.Bold).SprintFunc()
	warnColor := color.New(color.FgHiMagenta).SprintFunc()

	fmt.Fprintln(w, "\n"+headerColor("[vshort Bypass Run]"))
	fmt.Fprintf(w, "%s  : %s\n", labelColor("Target "), valueColor(r.Target))
	if r.LinkID != "" {
		fmt.Fprintf(w, "%s  : %s\n", labelColor("Link ID"), valueColor(r.LinkID))
	}
	fmt.Fprintf(w, "%s  : %s\n", labelColor("Network"), valueColor(r.Network))

	if len(r.Steps) > 0 {
		fmt.Fprintln(w, "\n"+sectionColor("--------------------------------------------------"))
		fmt.Fprintln(w, sectionColor("[1] Request Chain"))
		fmt.Fprintln(w, sectionColor("--------------------------------------------------"))
		for i, s := range r.Steps {
			if s.Error != "" {
				fmt.Fprintf(w, "  [%d] %-12s %s %s → %s\n", i+1, s.Name, s.Method, s.URL, errorColor(s.Error))
				continue
			}
			fmt.Fprintf(w, "  [%d] %-12s %s %s → %s %s\n", i+1, s.Name, s.Method, s.URL,
				valueColor(fmt.Sprintf("%d", s.StatusCode)), valueColor(s.Protocol))
			fmt.Fprintf(w, "      total %d ms, ttfb %d ms, tls %d ms, reused %v\n",
				s.TotalDuration.Milliseconds(), s.GotFirstResponseByte.Milliseconds(),
				s.TLSHandshakeDone.Milliseconds(), s.ConnectionReused)
			if s.FinalURL != "" && s.FinalURL != s.URL {
				fmt.Fprintf(w, "      resolved to %s\n", s.FinalURL)
			}
		}
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "  %s %s\n", warnColor("!"), warnColor(issue))
		}
	}

	if r.TokensFound != nil {
		fmt.Fprintln(w, "\n"+sectionColor("--------------------------------------------------"))
		fmt.Fprintln(w, sectionColor("[2] Tokens"))
		fmt.Fprintln(w, sectionColor("--------------------------------------------------"))
		for _, name := range []string{FieldCSRFToken, FieldAdFormData, FieldTokenFields, FieldTokenUnlocked} {
			state := errorColor("missing")
			if r.TokensFound[name] {
				state = successColor("found")
			}
			fmt.Fprintf(w, "  %-18s : %s\n", labelColor(name), state)
		}
	}

	fmt.Fprintln(w)
	if r.Success {
		fmt.Fprintln(w, successColor("✅ SUCCESS: ")+valueColor(r.URL))
	} else {
		fmt.Fprintln(w, errorColor("❌ "+r.diagnostic()))
	}
	if len(r.Steps) > 0 {
		fmt.Fprintf(w, "Total Time: %.2fs\n", r.Elapsed.Seconds())
	}
}

// WriteStructuredLog appends the report as a JSON line to filename.
func WriteStructuredLog(r RunReport, filename string) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	if _, err := f.Write(b); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return nil
}
