package executor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

// nuclei scans a URL with the template repository. User -t paths win over the
// default template dir; everything else follows the default emission rule.
func (b *toolBuilders) nuclei(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	jsonFile := filepath.Join(outputDir, "nuclei_results.json")

	cmd := []string{"nuclei", "-u", target, "-no-color", "-stats", "-jsonl", "-o", jsonFile}

	var templates []string
	var others []scans.ToolParameter
	for _, p := range params {
		if p.Flag == "-t" {
			templates = append(templates, p.Value.List()...)
		} else {
			others = append(others, p)
		}
	}
	if len(templates) == 0 {
		templates = []string{b.cfg.NucleiTemplatesDir}
	}
	for _, t := range templates {
		cmd = append(cmd, "-t", t)
	}

	cmd = appendParams(cmd, others, nil)
	b.log.Info("built nuclei command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// nikto runs the perl script against the target host. -h, -o and -Format are
// backend-managed; user copies of those flags are dropped.
func (b *toolBuilders) nikto(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	jsonFile := filepath.Join(outputDir, "nikto_results.json")

	cmd := []string{"perl", b.cfg.NiktoScript, "-h", target, "-Format", "json", "-o", jsonFile}
	cmd = appendParams(cmd, params, map[string]bool{"-h": true, "-o": true, "-Format": true})
	b.log.Info("built nikto command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// sqlmap is forced non-interactive and writes into the managed output dir.
func (b *toolBuilders) sqlmap(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}

	cmd := []string{"sqlmap", "-u", target, "--batch", "--output-dir", outputDir}
	cmd = appendParams(cmd, params, map[string]bool{"-u": true, "--output-dir": true, "--batch": true})
	b.log.Info("built sqlmap command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// trivy scans a container image; the scan target is ignored and the image
// comes from the imageName parameter.
func (b *toolBuilders) trivy(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	jsonFile := filepath.Join(outputDir, "trivy_results.json")

	var image string
	var others []scans.ToolParameter
	for _, p := range params {
		if p.Flag == "imageName" {
			image = p.Value.String()
		} else {
			others = append(others, p)
		}
	}
	if image == "" {
		return nil, scans.MissingParameterError(tool, "imageName")
	}

	cmd := []string{"trivy", "image", "--format", "json", "-o", jsonFile, image}
	cmd = appendParams(cmd, others, nil)
	b.log.Info("built trivy command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// lynis audits the local system; the scan target is ignored.
func (b *toolBuilders) lynis(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	logFile := filepath.Join(outputDir, "lynis.log")
	reportFile := filepath.Join(outputDir, "lynis-report.dat")

	cmd := []string{"lynis", "audit", "system", "--cronjob", "--logfile", logFile, "--report-file", reportFile}
	cmd = appendParams(cmd, params, nil)
	b.log.Info("built lynis command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// wpscan needs a scheme-prefixed URL and uses --random-user-agent where the
// legacy parameter name says --random-agent.
func (b *toolBuilders) wpscan(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	jsonFile := filepath.Join(outputDir, "wpscan_results.json")

	url := target
	if !strings.HasPrefix(strings.ToLower(target), "http://") && !strings.HasPrefix(strings.ToLower(target), "https://") {
		url = "http://" + target
	}

	cmd := []string{"wpscan", "--url", url, "--format", "json", "--output", jsonFile, "--no-update"}

	aliased := make([]scans.ToolParameter, 0, len(params))
	for _, p := range params {
		if p.Flag == "--random-agent" {
			p.Flag = "--random-user-agent"
		}
		aliased = append(aliased, p)
	}
	cmd = appendParams(cmd, aliased, nil)
	b.log.Info("built wpscan command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// semgrep clones the repo named by gitURL and scans the checkout. --config
// defaults to auto unless the caller provided one.
func (b *toolBuilders) semgrep(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	repoURL, err := repoURLParam(params, tool, "gitURL")
	if err != nil {
		return nil, err
	}

	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	jsonFile := filepath.Join(outputDir, "semgrep_results.json")

	sourceDir, errCmd := b.cloneRepo(ctx, repoURL, scanID, tool)
	if errCmd != nil {
		return errCmd, nil
	}

	cmd := []string{"semgrep", "scan", "--json", "-o", jsonFile, sourceDir}
	if _, ok := findParam(params, "--config"); !ok {
		cmd = append(cmd, "--config", "auto")
	}
	cmd = appendParams(cmd, params, map[string]bool{"gitURL": true})
	b.log.Info("built semgrep command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// trufflehog scans a cloned checkout for secrets. Only toggle flags pass
// through; --regex and --entropy are deprecated upstream and dropped.
func (b *toolBuilders) trufflehog(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	repoURL, err := repoURLParam(params, tool, "repoURL")
	if err != nil {
		return nil, err
	}

	if _, err := b.ensureOutputDir(scanID, tool); err != nil {
		return nil, err
	}
	sourceDir, errCmd := b.cloneRepo(ctx, repoURL, scanID, tool)
	if errCmd != nil {
		return errCmd, nil
	}

	cmd := []string{"trufflehog", "filesystem", sourceDir, "--json"}
	for _, p := range params {
		switch p.Flag {
		case "repoURL", "--regex", "--entropy":
			continue
		}
		if !p.RequiresValue && p.Value.Truthy() {
			cmd = append(cmd, p.Flag)
		}
	}
	b.log.Info("built trufflehog command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// gitleaks clones the repo and writes its report through the dedicated flag.
func (b *toolBuilders) gitleaks(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	repoURL, err := repoURLParam(params, tool, "repoURL")
	if err != nil {
		return nil, err
	}

	outputDir, err := b.ensureOutputDir(scanID, tool)
	if err != nil {
		return nil, err
	}
	jsonFile := filepath.Join(outputDir, "gitleaks_results.json")

	cloneDir, errCmd := b.cloneRepo(ctx, repoURL, scanID, tool)
	if errCmd != nil {
		return errCmd, nil
	}

	cmd := []string{"gitleaks", "detect", "--source", cloneDir, "-r", jsonFile, "-f", "json"}
	cmd = appendParams(cmd, params, map[string]bool{"repoURL": true})
	b.log.Info("built gitleaks command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// yara runs the rule index recursively over a cloned checkout.
func (b *toolBuilders) yara(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	repoURL, err := repoURLParam(params, tool, "repoURL")
	if err != nil {
		return nil, err
	}

	if _, err := b.ensureOutputDir(scanID, tool); err != nil {
		return nil, err
	}
	sourceDir, errCmd := b.cloneRepo(ctx, repoURL, scanID, tool)
	if errCmd != nil {
		return errCmd, nil
	}

	cmd := []string{"yara", "-r", b.cfg.YaraRulesIndex, sourceDir}
	cmd = appendParams(cmd, params, map[string]bool{"repoURL": true})
	b.log.Info("built yara command", slog.String("cmd", strings.Join(cmd, " ")))
	return cmd, nil
}

// httpx reads its target from stdin, so the whole invocation is wrapped as
// sh -c "echo <target> | httpx ...". The target is shell-quoted.
func (b *toolBuilders) httpx(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error) {
	if _, err := b.ensureOutputDir(scanID, tool); err != nil {
		return nil, err
	}

	inner := appendParams([]string{"httpx"}, params, nil)

	normalized := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		normalized = "http://" + target
	}
	inner = append(inner, normalized)

	shellCmd := "echo " + shellQuote(target) + " | " + strings.Join(inner, " ")
	b.log.Info("built httpx command", slog.String("cmd", shellCmd))
	return []string{"sh", "-c", shellCmd}, nil
}
