package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockSignal(t *testing.T) {
	require.Empty(t, blockSignal(StepResult{Name: "root", StatusCode: 200}))
	require.Empty(t, blockSignal(StepResult{Name: "root", StatusCode: 302}))
	require.Empty(t, blockSignal(StepResult{Name: "root", Error: "refused"}))
	require.Contains(t, blockSignal(StepResult{Name: "landing", StatusCode: 403}), "possible block")
	require.Contains(t, blockSignal(StepResult{Name: "landing", StatusCode: 429}), "possible block")
	require.Contains(t, blockSignal(StepResult{Name: "submit", StatusCode: 502}), "server error")
}

func TestObservedIssues(t *testing.T) {
	issues := observedIssues([]StepResult{
		{Name: "root", StatusCode: 200},
		{Name: "intermediate", StatusCode: 429},
		{Name: "landing", StatusCode: 200},
	})
	require.Equal(t, []string{"intermediate returned HTTP 429 (possible block)"}, issues)
}
