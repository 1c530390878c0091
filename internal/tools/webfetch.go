package tools

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	webFetchTimeout      = 30 * time.Second
	webFetchMaxRedirects = 3
	webFetchUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// WebFetchTool implements §4.2's webFetch(url, maxLength) with DNS-pinned
// SSRF protection: each connection resolves the host at dial time, checks
// every address, and dials the IP that passed the check, so a TOCTOU
// redirect-to-internal attack can't swap the address after the policy
// check.
type WebFetchTool struct{}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{}
}

func (t *WebFetchTool) Name() string        { return "webFetch" }
func (t *WebFetchTool) Description() string { return "Fetch a URL and return its text content" }
func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url":       map[string]interface{}{"type": "string"},
			"maxLength": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"url", "maxLength"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	raw, _ := args["url"].(string)
	if raw == "" {
		return ErrorResult(ErrValidation, "url is required")
	}
	maxLength := intArg(args, "maxLength", 5000)

	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrorResult(ErrValidation, fmt.Sprintf("invalid url: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult(ErrPolicyDenied, "only http(s) URLs are allowed")
	}
	if parsed.Host == "" {
		return ErrorResult(ErrValidation, "url must have a host")
	}

	if _, err := resolveAndCheckSSRF(ctx, parsed.Hostname()); err != nil {
		return ErrorResult(ErrPolicyDenied, err.Error())
	}

	client := &http.Client{
		Timeout: webFetchTimeout,
		Transport: &http.Transport{
			DialContext: pinnedDialer(),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= webFetchMaxRedirects {
				return fmt.Errorf("too many redirects")
			}
			if _, err := resolveAndCheckSSRF(req.Context(), req.URL.Hostname()); err != nil {
				return err
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return ErrorResult(ErrValidation, err.Error())
	}
	req.Header.Set("User-Agent", webFetchUserAgent)
	req.Header.Set("Accept", "text/html,text/plain,application/json;q=0.8,*/*;q=0.1")

	resp, err := client.Do(req)
	if err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrorResult(ErrUpstream, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextualContentType(contentType) {
		return ErrorResult(ErrPolicyDenied, fmt.Sprintf("refusing non-text content type %q", contentType))
	}

	limited := io.LimitReader(resp.Body, int64(maxLength)*4)
	var text string
	if strings.Contains(contentType, "html") {
		text, err = htmlToText(limited)
	} else {
		b, rerr := io.ReadAll(limited)
		text, err = string(b), rerr
	}
	if err != nil {
		return ErrorResult(ErrUpstream, err.Error())
	}

	truncated := false
	if len(text) > maxLength {
		text = text[:maxLength]
		truncated = true
	}
	if truncated {
		text += "\n…(truncated)"
	}
	return SilentResult(text)
}

func isTextualContentType(ct string) bool {
	if ct == "" {
		return true
	}
	lower := strings.ToLower(ct)
	for _, allowed := range []string{"text/", "application/json", "application/xml", "application/xhtml"} {
		if strings.Contains(lower, allowed) {
			return true
		}
	}
	return false
}

// resolveAndCheckSSRF resolves host up front and rejects private, loopback,
// link-local, unique-local, unspecified, and cloud-metadata addresses.
// Returns the pinned IP to dial so a later DNS change (TOCTOU) can't retarget
// the connection after the policy check.
func resolveAndCheckSSRF(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if err := checkSSRFAddr(ip); err != nil {
			return nil, err
		}
		return ip, nil
	}
	resolver := &net.Resolver{}
	ips, err := resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("dns resolution failed: %w", err)
	}
	for _, ip := range ips {
		if err := checkSSRFAddr(ip); err != nil {
			return nil, err
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses resolved for %s", host)
	}
	return ips[0], nil
}

func checkSSRFAddr(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("refusing to fetch non-public address %s", ip)
	}
	// 169.254.169.254 (AWS/GCP/Azure metadata) is link-local and already
	// caught above; fd00::/8 (ULA) is covered by IsPrivate for IPv6 in Go 1.17+.
	if ip.String() == "169.254.169.254" {
		return fmt.Errorf("refusing to fetch cloud metadata address")
	}
	return nil
}

// pinnedDialer resolves and re-validates the target host immediately before
// dialing, so the policy check and the connection attempt share one
// resolution — the window a TOCTOU DNS rebind would need to exploit.
func pinnedDialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			host, port = addr, "443"
		}
		ip, err := resolveAndCheckSSRF(ctx, host)
		if err != nil {
			return nil, err
		}
		d := net.Dialer{Timeout: webFetchTimeout}
		return d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
	}
}
