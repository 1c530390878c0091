// Package pathgate decides whether a filesystem or shell operation is
// allowed and produces the canonical absolute path to use. It is the sole
// arbiter of containment: every tool that touches disk or spawns a process
// routes through a Gate built from the session's AgentConfig.
package pathgate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
)

// ErrDenied is wrapped by every PolicyDenied failure so callers can test for
// the class without string-matching the message.
var ErrDenied = errors.New("policy denied")

// Gate holds the canonicalized read/write roots derived from an AgentConfig.
type Gate struct {
	readRoots  []string
	writeRoots []string
}

// New builds a Gate from allowed read and write roots (see §3: PathGate
// state). Roots are canonicalized where they already exist; a root that does
// not yet exist is kept as an absolute, cleaned path so later EnsureDirs
// calls can create it before first use.
func New(readRoots, writeRoots []string) *Gate {
	return &Gate{
		readRoots:  canonicalizeRoots(readRoots),
		writeRoots: canonicalizeRoots(writeRoots),
	}
}

func canonicalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	seen := map[string]bool{}
	for _, r := range roots {
		if r == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			real = abs
		}
		if !seen[real] {
			seen[real] = true
			out = append(out, real)
		}
	}
	return out
}

// Resolve canonicalizes input (resolving it against base when relative) by
// resolving every path segment, including symlinks, before use. It does not
// itself enforce containment — callers pair it with AssertReadAllowed or
// AssertWriteAllowed.
func (g *Gate) Resolve(input, base string) (string, error) {
	var candidate string
	if filepath.IsAbs(input) {
		candidate = filepath.Clean(input)
	} else {
		candidate = filepath.Clean(filepath.Join(base, input))
	}

	real, err := filepath.EvalSymlinks(candidate)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: cannot resolve path %q: %v", ErrDenied, input, err)
	}

	// Candidate itself may be a broken symlink; follow it through existing
	// ancestors so a chain of symlinks cannot hide an escape.
	if linfo, lerr := os.Lstat(candidate); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
		target, rerr := os.Readlink(candidate)
		if rerr != nil {
			return "", fmt.Errorf("%w: cannot resolve symlink %q", ErrDenied, candidate)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(candidate), target)
		}
		resolved, rerr := resolveThroughExistingAncestors(filepath.Clean(target))
		if rerr != nil {
			slog.Warn("security.broken_symlink_resolve_failed", "path", input, "target", target)
			return "", fmt.Errorf("%w: cannot resolve broken symlink target", ErrDenied)
		}
		return resolved, nil
	}

	// Truly non-existent: resolve the deepest existing ancestor and reattach
	// the missing tail, so a path under not-yet-created directories resolves.
	return resolveThroughExistingAncestors(candidate)
}

// resolveThroughExistingAncestors resolves a path by finding the deepest
// existing ancestor, canonicalizing it, then reattaching the remaining
// non-existent tail components.
func resolveThroughExistingAncestors(target string) (string, error) {
	if real, err := filepath.EvalSymlinks(target); err == nil {
		return real, nil
	}
	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, c := range tail {
				result = filepath.Join(result, c)
			}
			return result, nil
		}
	}
	return filepath.Clean(target), nil
}

// AssertReadAllowed verifies the already-canonicalized path descends from at
// least one allowed read root, and rejects TOCTOU / hardlink escape vectors.
func (g *Gate) AssertReadAllowed(resolved string) error {
	return g.assert(resolved, g.readRoots, "read")
}

// AssertWriteAllowed verifies the already-canonicalized path descends from at
// least one allowed write root. Write roots are a strict subset of read
// roots; built-ins and the user dir are never writable.
func (g *Gate) AssertWriteAllowed(resolved string) error {
	return g.assert(resolved, g.writeRoots, "write")
}

func (g *Gate) assert(resolved string, roots []string, op string) error {
	inside := false
	for _, root := range roots {
		if isPathInside(resolved, root) {
			inside = true
			break
		}
	}
	if !inside {
		return fmt.Errorf("%w: %s access to %q is outside allowed roots", ErrDenied, op, resolved)
	}
	if hasMutableSymlinkParent(resolved) {
		slog.Warn("security.mutable_symlink_parent", "path", resolved)
		return fmt.Errorf("%w: %q contains a mutable symlink component", ErrDenied, resolved)
	}
	if err := checkHardlink(resolved); err != nil {
		return err
	}
	return nil
}

// ResolveAndAssertRead combines Resolve and AssertReadAllowed, the shape
// every read-side tool actually calls.
func (g *Gate) ResolveAndAssertRead(input, base string) (string, error) {
	resolved, err := g.Resolve(input, base)
	if err != nil {
		return "", err
	}
	if err := g.AssertReadAllowed(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// ResolveAndAssertWrite combines Resolve and AssertWriteAllowed.
func (g *Gate) ResolveAndAssertWrite(input, base string) (string, error) {
	resolved, err := g.Resolve(input, base)
	if err != nil {
		return "", err
	}
	if err := g.AssertWriteAllowed(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// hasMutableSymlinkParent walks path components looking for a symlink whose
// parent directory is writable by this process — such a symlink could be
// rebound between resolution and use.
func hasMutableSymlinkParent(path string) bool {
	clean := filepath.Clean(path)
	components := strings.Split(clean, string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(current)
			if syscall.Access(parentDir, 0x2 /* W_OK */) == nil {
				return true
			}
		}
	}
	return false
}

// checkHardlink rejects regular files with nlink > 1. Directories are exempt
// since they naturally have nlink > 1 from "." and child "..".
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil // non-existent — later open() will fail on its own
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Nlink > 1 {
			slog.Warn("security.hardlink_rejected", "path", path, "nlink", stat.Nlink)
			return fmt.Errorf("%w: %q is hardlinked (nlink=%d)", ErrDenied, path, stat.Nlink)
		}
	}
	return nil
}

// --- Command classification (§4.1) ---

// Classification is the verdict classifyCommand returns.
type Classification struct {
	Auto      bool
	Dangerous bool
}

var controlOperatorRe = regexp.MustCompile("[;&|><`\n\r]|\\$\\(")

// autoAllowPatterns are read-only, informational commands. Matched against
// the whitespace-trimmed command line.
var autoAllowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ls\b`),
	regexp.MustCompile(`^pwd$`),
	regexp.MustCompile(`^echo\b`),
	regexp.MustCompile(`^cat\b`),
	regexp.MustCompile(`^head\b`),
	regexp.MustCompile(`^tail\b`),
	regexp.MustCompile(`^which\b`),
	regexp.MustCompile(`^type\b`),
	regexp.MustCompile(`^man\b`),
	regexp.MustCompile(`^git\s+(status|log|diff|branch)\b`),
	regexp.MustCompile(`^node\s+--version$`),
	regexp.MustCompile(`^bun\s+--version$`),
}

// dangerPatterns flag a command as always-dangerous regardless of the
// allow-list. Categorized deny bank: destructive file ops, data exfiltration,
// reverse shells/network backdoors, dangerous eval/code injection, privilege
// escalation, dangerous path/permission operations, environment variable
// injection, container/sandbox escape, crypto mining, filter-bypass tricks,
// network reconnaissance, persistence, and process manipulation.
var dangerPatterns = []*regexp.Regexp{
	// Destructive file/disk operations
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\brm\s+.*--recursive`),
	regexp.MustCompile(`\brm\s+.*--force`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// Data exfiltration / reverse shells
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b|-X\s*P(UT|OST|ATCH))`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*--post-(data|file)`),
	regexp.MustCompile(`/dev/tcp/`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bmkfifo\b`),

	// Dangerous eval / code injection
	regexp.MustCompile(`\beval\s*\$`),
	regexp.MustCompile(`\bbase64\s+-d\b.*\|\s*(ba)?sh\b`),

	// Privilege escalation
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bnsenter\b`),
	regexp.MustCompile(`\bunshare\b`),
	regexp.MustCompile(`\b(mount|umount)\b`),

	// Dangerous path / permission operations
	regexp.MustCompile(`\bchmod\b`),
	regexp.MustCompile(`\bchown\b`),

	// Environment variable injection
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bDYLD_INSERT_LIBRARIES\s*=`),
	regexp.MustCompile(`\bBASH_ENV\s*=`),

	// Container / sandbox escape
	regexp.MustCompile(`/var/run/docker\.sock|docker\.(sock|socket)`),
	regexp.MustCompile(`/proc/sys/(kernel|fs|net)/`),
	regexp.MustCompile(`/sys/(kernel|fs|class|devices)/`),

	// Crypto mining
	regexp.MustCompile(`\b(xmrig|cpuminer|minerd|cgminer|bfgminer|ethminer|nbminer|t-rex|phoenixminer|lolminer|gminer|claymore)\b`),
	regexp.MustCompile(`stratum\+tcp://|stratum\+ssl://`),

	// Filter bypass (Claude Code CVE-2025-66032 class)
	regexp.MustCompile(`\bsed\b.*['"]/e\b`),
	regexp.MustCompile(`\bsort\b.*--compress-program`),
	regexp.MustCompile(`\bgit\b.*(--upload-pack|--receive-pack|--exec)=`),
	regexp.MustCompile(`\b(rg|grep)\b.*--pre=`),

	// Network reconnaissance
	regexp.MustCompile(`\b(nmap|masscan|zmap|rustscan)\b`),
	regexp.MustCompile(`\b(chisel|frp|ngrok|cloudflared|bore|localtunnel)\b`),

	// Persistence
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`),
	regexp.MustCompile(`\btee\b.*\.(bashrc|bash_profile|profile|zshrc)`),

	// Process manipulation
	regexp.MustCompile(`\bkill\s+-9\s`),
	regexp.MustCompile(`\b(killall|pkill)\b`),

	// VCS / data destruction
	regexp.MustCompile(`\bgit\s+push\s+--force\b`),
	regexp.MustCompile(`\bgit\s+reset\s+--hard\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
}

// ClassifyCommand decides whether cmdline is Auto (may run without
// confirmation) or Prompt (requires approval), per §4.1. A command is Auto
// only when it matches the allow-list AND contains no shell control
// operators; danger-list matches always classify as Prompt{dangerous:true}.
func ClassifyCommand(cmdline string) Classification {
	trimmed := strings.TrimSpace(cmdline)

	for _, re := range dangerPatterns {
		if re.MatchString(trimmed) {
			return Classification{Auto: false, Dangerous: true}
		}
	}

	hasControlOp := controlOperatorRe.MatchString(trimmed) || strings.Contains(trimmed, "$(")
	matchesAllow := false
	for _, re := range autoAllowPatterns {
		if re.MatchString(trimmed) {
			matchesAllow = true
			break
		}
	}

	if matchesAllow && !hasControlOp {
		return Classification{Auto: true, Dangerous: false}
	}
	return Classification{Auto: false, Dangerous: false}
}
