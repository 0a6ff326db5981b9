// Package shield implements the shield protection rule: lightweight request
// heuristics that block scanners and common injection probes on sensitive
// endpoints.
package shield

import (
	"net/http"
	"net/url"
	"strings"
)

// Verdict is the outcome of Inspect. Rule names the heuristic that matched.
type Verdict struct {
	Blocked bool
	Rule    string
}

const (
	RuleScannerAgent  = "scanner_user_agent"
	RulePathTraversal = "path_traversal"
	RuleSQLInjection  = "sql_injection"
	RuleScriptInject  = "script_injection"
	RuleRequestSmuggl = "request_smuggling"
)

var defaultScannerAgents = []string{
	"acunetix",
	"dirbuster",
	"gobuster",
	"masscan",
	"nessus",
	"nikto",
	"nmap",
	"nuclei",
	"sqlmap",
	"wpscan",
	"zgrab",
}

var traversalMarkers = []string{"../", "..\\", "%2e%2e", "/etc/passwd", "\x00"}

var sqlMarkers = []string{
	"' or '1'='1",
	"' or 1=1",
	"\" or 1=1",
	"union select",
	"union all select",
	"; drop table",
	"sleep(",
	"benchmark(",
	"information_schema",
}

var scriptMarkers = []string{"<script", "javascript:", "onerror=", "onload=", "<iframe"}

// Detector inspects requests. The zero value is not usable; call New.
type Detector struct {
	agents []string
}

// New creates a Detector. extraAgents adds user-agent substrings to block.
func New(extraAgents ...string) *Detector {
	agents := make([]string, 0, len(defaultScannerAgents)+len(extraAgents))
	agents = append(agents, defaultScannerAgents...)
	for _, a := range extraAgents {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			agents = append(agents, a)
		}
	}
	return &Detector{agents: agents}
}

// Inspect evaluates r without reading its body.
func (d *Detector) Inspect(r *http.Request) Verdict {
	if r == nil {
		return Verdict{}
	}

	ua := strings.ToLower(r.UserAgent())
	for _, a := range d.agents {
		if strings.Contains(ua, a) {
			return Verdict{Blocked: true, Rule: RuleScannerAgent}
		}
	}

	if r.Header.Get("Transfer-Encoding") != "" && r.Header.Get("Content-Length") != "" {
		return Verdict{Blocked: true, Rule: RuleRequestSmuggl}
	}

	for _, target := range inspectTargets(r) {
		if containsAny(target, traversalMarkers) {
			return Verdict{Blocked: true, Rule: RulePathTraversal}
		}
		if containsAny(target, sqlMarkers) {
			return Verdict{Blocked: true, Rule: RuleSQLInjection}
		}
		if containsAny(target, scriptMarkers) {
			return Verdict{Blocked: true, Rule: RuleScriptInject}
		}
	}

	return Verdict{}
}

// inspectTargets returns the raw and decoded path and query, lower-cased.
func inspectTargets(r *http.Request) []string {
	if r.URL == nil {
		return nil
	}
	out := []string{
		strings.ToLower(r.URL.EscapedPath()),
		strings.ToLower(r.URL.Path),
		strings.ToLower(r.URL.RawQuery),
	}
	if q, err := url.QueryUnescape(r.URL.RawQuery); err == nil {
		out = append(out, strings.ToLower(q))
	}
	return out
}

func containsAny(s string, markers []string) bool {
	if s == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
