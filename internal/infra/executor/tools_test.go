package executor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg := NewRegistry(BuilderConfig{
		OutputsDir:         root,
		NucleiTemplatesDir: "/root/nuclei-templates",
		NiktoScript:        "/opt/nikto/program/nikto.pl",
		YaraRulesIndex:     "/opt/yara-rules/index.yar",
	}, testLogger())
	return reg, root
}

func buildCmd(t *testing.T, reg *Registry, tool, target string, params []scans.ToolParameter) []string {
	t.Helper()
	builder, err := reg.Builder(tool)
	require.NoError(t, err)
	cmd, err := builder(context.Background(), target, params, "scan-1", tool)
	require.NoError(t, err)
	return cmd
}

func TestRegistryLookup(t *testing.T) {
	reg, _ := testRegistry(t)

	_, err := reg.Builder("NUCLEI")
	assert.NoError(t, err, "lookup must be case-insensitive")

	_, err = reg.Builder("masscan")
	assert.ErrorIs(t, err, scans.ErrUnsupportedTool)

	names := reg.Names()
	assert.Len(t, names, 11)
	assert.Contains(t, names, "httpx")
	assert.Contains(t, names, "trufflehog")
}

func TestTrivyCommand(t *testing.T) {
	reg, root := testRegistry(t)

	cmd := buildCmd(t, reg, "trivy", "ignored.example.com", []scans.ToolParameter{
		{Flag: "imageName", Value: scans.StringValue("nginx:latest"), RequiresValue: true},
	})

	want := []string{
		"trivy", "image", "--format", "json",
		"-o", filepath.Join(root, "scan-1", "trivy", "trivy_results.json"),
		"nginx:latest",
	}
	assert.Equal(t, want, cmd)
}

func TestTrivyMissingImage(t *testing.T) {
	reg, _ := testRegistry(t)
	builder, err := reg.Builder("trivy")
	require.NoError(t, err)

	_, err = builder(context.Background(), "example.com", nil, "scan-1", "trivy")
	assert.ErrorIs(t, err, scans.ErrMissingParameter)
}

func TestNucleiCommand(t *testing.T) {
	reg, root := testRegistry(t)

	cmd := buildCmd(t, reg, "nuclei", "https://example.com", nil)
	want := []string{
		"nuclei", "-u", "https://example.com", "-no-color", "-stats", "-jsonl",
		"-o", filepath.Join(root, "scan-1", "nuclei", "nuclei_results.json"),
		"-t", "/root/nuclei-templates",
	}
	assert.Equal(t, want, cmd)
}

func TestNucleiCustomTemplates(t *testing.T) {
	reg, _ := testRegistry(t)

	cmd := buildCmd(t, reg, "nuclei", "https://example.com", []scans.ToolParameter{
		{Flag: "-t", Value: scans.ListValue("cves/", "exposures/"), RequiresValue: true},
		{Flag: "-severity", Value: scans.StringValue("high"), RequiresValue: true},
	})

	assert.Contains(t, cmd, "cves/")
	assert.Contains(t, cmd, "exposures/")
	assert.NotContains(t, cmd, "/root/nuclei-templates", "user templates replace the default dir")
	assert.Contains(t, cmd, "-severity")
	assert.Contains(t, cmd, "high")
}

func TestNiktoReservedFlags(t *testing.T) {
	reg, root := testRegistry(t)

	cmd := buildCmd(t, reg, "nikto", "example.com", []scans.ToolParameter{
		{Flag: "-h", Value: scans.StringValue("evil.com"), RequiresValue: true},
		{Flag: "-Tuning", Value: scans.StringValue("9"), RequiresValue: true},
	})

	want := []string{
		"perl", "/opt/nikto/program/nikto.pl",
		"-h", "example.com", "-Format", "json",
		"-o", filepath.Join(root, "scan-1", "nikto", "nikto_results.json"),
		"-Tuning", "9",
	}
	assert.Equal(t, want, cmd, "user -h must not override the backend target")
}

func TestSqlmapCommand(t *testing.T) {
	reg, root := testRegistry(t)

	cmd := buildCmd(t, reg, "sqlmap", "http://example.com/?id=1", []scans.ToolParameter{
		{Flag: "--output-dir", Value: scans.StringValue("/tmp/elsewhere"), RequiresValue: true},
		{Flag: "--level", Value: scans.StringValue("3"), RequiresValue: true},
		{Flag: "--risk", Value: scans.StringValue("2"), RequiresValue: true},
	})

	want := []string{
		"sqlmap", "-u", "http://example.com/?id=1", "--batch",
		"--output-dir", filepath.Join(root, "scan-1", "sqlmap"),
		"--level", "3", "--risk", "2",
	}
	assert.Equal(t, want, cmd)
}

func TestWpscanCommand(t *testing.T) {
	reg, root := testRegistry(t)

	cmd := buildCmd(t, reg, "wpscan", "blog.example.com", []scans.ToolParameter{
		{Flag: "--random-agent", Value: scans.BoolValue(true)},
		{Flag: "--enumerate", Value: scans.StringValue("vp"), RequiresValue: true},
	})

	want := []string{
		"wpscan", "--url", "http://blog.example.com", "--format", "json",
		"--output", filepath.Join(root, "scan-1", "wpscan", "wpscan_results.json"),
		"--no-update",
		"--random-user-agent",
		"--enumerate", "vp",
	}
	assert.Equal(t, want, cmd, "scheme is prefixed and --random-agent is aliased")
}

func TestWpscanKeepsExistingScheme(t *testing.T) {
	reg, _ := testRegistry(t)

	cmd := buildCmd(t, reg, "wpscan", "https://blog.example.com", nil)
	assert.Equal(t, "https://blog.example.com", cmd[2])
}

func TestLynisCommand(t *testing.T) {
	reg, root := testRegistry(t)

	cmd := buildCmd(t, reg, "lynis", "ignored", nil)
	want := []string{
		"lynis", "audit", "system", "--cronjob",
		"--logfile", filepath.Join(root, "scan-1", "lynis", "lynis.log"),
		"--report-file", filepath.Join(root, "scan-1", "lynis", "lynis-report.dat"),
	}
	assert.Equal(t, want, cmd)
}

func TestCloneToolsRequireRepoURL(t *testing.T) {
	reg, _ := testRegistry(t)

	cases := []struct {
		tool string
		flag string
	}{
		{"semgrep", "gitURL"},
		{"trufflehog", "repoURL"},
		{"gitleaks", "repoURL"},
		{"yara", "repoURL"},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			builder, err := reg.Builder(tc.tool)
			require.NoError(t, err)

			_, err = builder(context.Background(), "example.com", nil, "scan-1", tc.tool)
			assert.ErrorIs(t, err, scans.ErrMissingParameter)

			// non-string values do not count either
			_, err = builder(context.Background(), "example.com", []scans.ToolParameter{
				{Flag: tc.flag, Value: scans.BoolValue(true), RequiresValue: true},
			}, "scan-1", tc.tool)
			assert.ErrorIs(t, err, scans.ErrMissingParameter)
		})
	}
}

func TestHttpxCommand(t *testing.T) {
	reg, _ := testRegistry(t)

	cmd := buildCmd(t, reg, "httpx", "example.com", []scans.ToolParameter{
		{Flag: "-status-code", Value: scans.BoolValue(true)},
	})

	require.Len(t, cmd, 3)
	assert.Equal(t, "sh", cmd[0])
	assert.Equal(t, "-c", cmd[1])
	assert.Equal(t, "echo 'example.com' | httpx -status-code http://example.com", cmd[2])
}

func TestHttpxQuotesTarget(t *testing.T) {
	reg, _ := testRegistry(t)

	cmd := buildCmd(t, reg, "httpx", "exa'mple.com", nil)
	assert.Contains(t, cmd[2], `'exa'\''mple.com'`, "single quotes in the target are escaped")
}

func TestAppendParamsEmissionRules(t *testing.T) {
	params := []scans.ToolParameter{
		{Flag: "--level", Value: scans.StringValue("3"), RequiresValue: true},
		{Flag: "--batch", Value: scans.BoolValue(true)},
		{Flag: "--quiet", Value: scans.BoolValue(false)},
		{Flag: "--tags", Value: scans.ListValue("cve", "oast"), RequiresValue: true},
		{Flag: "--skip", RequiresValue: true}, // absent value: dropped
		{Flag: "", Value: scans.StringValue("junk"), RequiresValue: true},
	}

	got := appendParams([]string{"tool"}, params, map[string]bool{"--reserved": true})
	assert.Equal(t, []string{"tool", "--level", "3", "--batch", "--tags", "cve,oast"}, got)
}

func TestFailingCommand(t *testing.T) {
	cmd := failingCommand("it broke")
	assert.Equal(t, []string{"sh", "-c", "echo 'it broke' >&2 && exit 1"}, cmd)
}
