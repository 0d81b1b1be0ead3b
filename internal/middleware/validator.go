package middleware

import (
	"fmt"
	"strings"
)

// Input validation and sanitization utilities

// ValidateTool checks if the tool name is in the allowed list
func ValidateTool(tool string) error {
	allowed := map[string]bool{
		"nuclei":     true,
		"nikto":      true,
		"sqlmap":     true,
		"trivy":      true,
		"lynis":      true,
		"wpscan":     true,
		"semgrep":    true,
		"trufflehog": true,
		"gitleaks":   true,
		"yara":       true,
		"httpx":      true,
	}

	if !allowed[strings.ToLower(tool)] {
		return fmt.Errorf("invalid tool: %s", tool)
	}
	return nil
}

// ValidateTarget rejects empty targets and shell metacharacters. Targets end
// up inside argument vectors (and one sh -c pipe), so this is defense in
// depth on top of the builders' own quoting.
func ValidateTarget(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("target cannot be empty")
	}

	dangerous := []string{"$(", "`", "&&", "||", ";", "|", "\n", "\r", ">", "<"}
	for _, d := range dangerous {
		if strings.Contains(target, d) {
			return fmt.Errorf("target contains forbidden sequence %q", d)
		}
	}
	return nil
}

// ValidateScanID keeps scan ids path-safe; they become directory names under
// the outputs root and object key segments.
func ValidateScanID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("scan_id cannot be empty")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("scan_id may only contain letters, digits, '-' and '_'")
		}
	}
	return nil
}
