package client

import (
	"fmt"
	"net/http"
)

// blockSignal inspects a step's status for signs the shortener is refusing
// us. It returns "" when the status looks normal. The chain keeps going
// either way: the landing body is still worth searching for tokens.
func blockSignal(step StepResult) string {
	switch code := step.StatusCode; {
	case code == 0:
		return ""
	case code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return fmt.Sprintf("%s returned HTTP %d (possible block)", step.Name, code)
	case code >= 500:
		return fmt.Sprintf("%s returned HTTP %d (server error)", step.Name, code)
	default:
		return ""
	}
}

// observedIssues collects the block signals of a run.
func observedIssues(steps []StepResult) []string {
	var issues []string
	for _, s := range steps {
		if sig := blockSignal(s); sig != "" {
			issues = append(issues, sig)
		}
	}
	return issues
}
