package analytics

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// LinkPattern classifies same-site paths. The first capture group, if any,
// is the linked entity's id.
type LinkPattern struct {
	Type    domain.LinkType
	Pattern *regexp.Regexp
}

// PatternSpec is the uncompiled form of a LinkPattern, as found in config.
type PatternSpec struct {
	Type string `yaml:"type"`
	Expr string `yaml:"expr"`
}

// DefaultPatternSpecs covers the member portal's content pages. The catch-all
// page pattern comes last.
func DefaultPatternSpecs() []PatternSpec {
	return []PatternSpec{
		{Type: string(domain.LinkAppointment), Expr: `^/appointments?/([A-Za-z0-9-]+)`},
		{Type: string(domain.LinkGroup), Expr: `^/groups?/([A-Za-z0-9-]+)`},
		{Type: string(domain.LinkStatusReport), Expr: `^/status-reports?/([A-Za-z0-9-]+)`},
		{Type: string(domain.LinkNewsletter), Expr: `^/newsletters?/([A-Za-z0-9-]+)`},
		{Type: string(domain.LinkPage), Expr: `^/`},
	}
}

// CompilePatterns compiles specs in order.
func CompilePatterns(specs []PatternSpec) ([]LinkPattern, error) {
	out := make([]LinkPattern, 0, len(specs))
	for _, s := range specs {
		re, err := regexp.Compile(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile link pattern %s: %w", s.Type, err)
		}
		out = append(out, LinkPattern{Type: domain.LinkType(s.Type), Pattern: re})
	}
	return out, nil
}

// LinkRewriter embeds the open pixel and routes same-site content links
// through the click-tracking redirect.
type LinkRewriter struct {
	base     string
	site     *url.URL
	patterns []LinkPattern
}

// NewLinkRewriter creates a rewriter that builds tracking URLs on baseURL and
// rewrites links to siteURL's host. An empty siteURL means baseURL's host.
func NewLinkRewriter(baseURL, siteURL string, patterns []LinkPattern) (*LinkRewriter, error) {
	base := strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("tracking base url %q: %w", baseURL, ErrInvalidURL)
	}
	if siteURL == "" {
		siteURL = base
	}
	site, err := url.Parse(siteURL)
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("site url %q: %w", siteURL, ErrInvalidURL)
	}
	return &LinkRewriter{base: base, site: site, patterns: patterns}, nil
}

var hrefPattern = regexp.MustCompile(`(?i)(\bhref\s*=\s*)(?:"([^"]*)"|'([^']*)')`)

// AddTracking rewrites matching links and inserts the tracking pixel before
// the closing body tag, or appends it when there is none.
func (r *LinkRewriter) AddTracking(doc, token string) string {
	doc = hrefPattern.ReplaceAllStringFunc(doc, func(m string) string {
		sub := hrefPattern.FindStringSubmatch(m)
		raw, quote := sub[2], `"`
		if sub[3] != "" || (sub[2] == "" && strings.HasSuffix(m, "'")) {
			raw, quote = sub[3], `'`
		}
		tracked, ok := r.trackedURL(html.UnescapeString(raw), token)
		if !ok {
			return m
		}
		return sub[1] + quote + html.EscapeString(tracked) + quote
	})

	pixel := fmt.Sprintf(`<img src="%s/track/pixel/%s" width="1" height="1" alt="" style="display:none" />`,
		r.base, url.PathEscape(token))
	if i := strings.LastIndex(strings.ToLower(doc), "</body>"); i >= 0 {
		return doc[:i] + pixel + doc[i:]
	}
	return doc + pixel
}

// Classify returns the link type and id of a same-site URL.
func (r *LinkRewriter) Classify(raw string) (domain.LinkType, string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", false
	}
	if !u.IsAbs() && strings.HasPrefix(u.Path, "/") && u.Host == "" {
		u = r.site.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}
	if !strings.EqualFold(u.Hostname(), r.site.Hostname()) {
		return "", "", false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if strings.HasPrefix(path, "/track/") {
		return "", "", false
	}
	for _, p := range r.patterns {
		m := p.Pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		id := ""
		if len(m) > 1 {
			id = m[1]
		}
		return p.Type, id, true
	}
	return "", "", false
}

func (r *LinkRewriter) trackedURL(raw, token string) (string, bool) {
	linkType, id, ok := r.Classify(raw)
	if !ok {
		return "", false
	}
	dest := strings.TrimSpace(raw)
	if u, err := url.Parse(dest); err == nil && !u.IsAbs() {
		dest = r.site.ResolveReference(u).String()
	}
	q := url.Values{}
	q.Set("url", EncodeURL(dest))
	q.Set("type", string(linkType))
	if id != "" {
		q.Set("id", id)
	}
	return r.base + "/track/click/" + url.PathEscape(token) + "?" + q.Encode(), true
}
