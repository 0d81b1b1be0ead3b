package prompt

import "fmt"

// GetSystemPrompt frames the assistant as a security analyst reading the
// aggregated scan report produced by the worker.
func GetSystemPrompt() string {
	return `You are a security analyst. You receive the JSON report of a ` +
		`vulnerability scan that ran several command-line tools (nuclei, nikto, ` +
		`sqlmap, trivy, gitleaks and others) against one target. Summarize the ` +
		`most important findings per tool, call out tools that failed and why, ` +
		`and finish with a prioritized remediation list. Respond with a JSON ` +
		`object: {"summary": string, "per_tool": [{"tool": string, "status": ` +
		`string, "highlights": [string]}], "recommendations": [string]}.`
}

// GetUserPrompt wraps the raw report for the model.
func GetUserPrompt(reportJSON string) string {
	return fmt.Sprintf("Scan report:\n```json\n%s\n```", reportJSON)
}
