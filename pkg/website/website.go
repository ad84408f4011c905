// Package website extracts profile-relevant details from a personal website.
package website

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"igprofiler/pkg/config"
	errs "igprofiler/pkg/errors"
	"igprofiler/pkg/logger"
	"igprofiler/pkg/models"
)

const (
	maxText        = 5000
	maxDescription = 500
	maxLinks       = 20
	maxImages      = 10
	maxKeywords    = 10
	maxBody        = 5 << 20
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// social platforms in the order they are checked
var socialPlatforms = []struct {
	name    string
	domains []string
}{
	{"twitter", []string{"twitter.com", "x.com"}},
	{"instagram", []string{"instagram.com"}},
	{"linkedin", []string{"linkedin.com"}},
	{"github", []string{"github.com"}},
	{"facebook", []string{"facebook.com"}},
	{"youtube", []string{"youtube.com"}},
	{"tiktok", []string{"tiktok.com"}},
}

// Fetcher downloads and parses personal websites.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    logger.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher.
func New(cfg config.WebsiteConfig, opts ...Option) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		logger:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.WithField("component", "website")
	return f
}

// Fetch scrapes rawURL. Only http(s) URLs are accepted. Network and parse
// failures are returned both as an error and in the Error field so callers
// can keep the partial record.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.WebsiteData, error) {
	base, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errs.New(errs.ErrorTypeValidation, fmt.Sprintf("not an http(s) URL: %q", rawURL))
	}

	data, err := f.fetch(ctx, base)
	if err != nil {
		f.logger.WithError(err).WarnWithFields("Website scrape failed", map[string]interface{}{"url": rawURL})
		return &models.WebsiteData{URL: rawURL, Error: errs.Sanitize(err)}, err
	}
	data.URL = rawURL
	f.logger.InfoWithFields("Website scraped", map[string]interface{}{
		"url":    rawURL,
		"title":  data.Title,
		"links":  len(data.Links),
		"emails": len(data.Emails),
	})
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, base *url.URL) (*models.WebsiteData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeValidation, err, "failed to create request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.TransientFetch(0, err, "website request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if errs.IsRetryableStatusCode(resp.StatusCode) {
			return nil, errs.TransientFetch(resp.StatusCode, nil, resp.Status)
		}
		return nil, errs.Upstream(resp.StatusCode, nil, resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errs.Decode(err, "failed to parse HTML")
	}
	return Extract(doc, base), nil
}

// Extract pulls the website fields out of a parsed document. Relative links
// and images are resolved against base.
func Extract(doc *html.Node, base *url.URL) *models.WebsiteData {
	p := &page{base: base, meta: map[string]string{}, links: newSet(), images: newSet()}
	p.walk(doc, false)

	data := &models.WebsiteData{
		Title:       p.title(),
		Description: p.description(),
		TextContent: truncate(collapse(p.text.String()), maxText),
		Links:       p.links.first(maxLinks),
		Images:      p.images.first(maxImages),
		Keywords:    p.keywords(),
	}

	emails := newSet()
	for _, e := range emailPattern.FindAllString(p.allText.String(), -1) {
		emails.add(e)
	}
	data.Emails = emails.items

	social := map[string]string{}
	for _, href := range p.hrefs {
		for _, sp := range socialPlatforms {
			if _, ok := social[sp.name]; ok {
				continue
			}
			for _, d := range sp.domains {
				if strings.Contains(href, d) {
					social[sp.name] = href
					break
				}
			}
		}
	}
	if len(social) > 0 {
		data.SocialLinks = social
	}
	return data
}

type page struct {
	base *url.URL

	titleTag  string
	firstH1   string
	firstP    string
	meta      map[string]string
	ogContent []string

	text    strings.Builder // visible text without boilerplate sections
	allText strings.Builder // every text node, used for email matching
	hrefs   []string
	links   *set
	images  *set
}

var skippedSections = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
}

func (p *page) walk(n *html.Node, skip bool) {
	switch n.Type {
	case html.TextNode:
		if n.Parent != nil && (n.Parent.DataAtom == atom.Script || n.Parent.DataAtom == atom.Style) {
			return
		}
		p.allText.WriteString(n.Data)
		p.allText.WriteByte(' ')
		if !skip {
			p.text.WriteString(n.Data)
			p.text.WriteByte(' ')
		}
		return
	case html.ElementNode:
		p.element(n)
		if skippedSections[n.DataAtom] {
			skip = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, skip)
	}
}

func (p *page) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Title:
		if p.titleTag == "" {
			p.titleTag = strings.TrimSpace(textOf(n))
		}
	case atom.H1:
		if p.firstH1 == "" {
			p.firstH1 = strings.TrimSpace(textOf(n))
		}
	case atom.P:
		if p.firstP == "" {
			p.firstP = strings.TrimSpace(textOf(n))
		}
	case atom.Meta:
		name := strings.ToLower(attr(n, "name"))
		prop := strings.ToLower(attr(n, "property"))
		content := strings.TrimSpace(attr(n, "content"))
		if content == "" {
			return
		}
		if name != "" {
			if _, ok := p.meta[name]; !ok {
				p.meta[name] = content
			}
		}
		if strings.HasPrefix(prop, "og:") {
			if _, ok := p.meta[prop]; !ok {
				p.meta[prop] = content
			}
			p.ogContent = append(p.ogContent, content)
		}
	case atom.A:
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" {
			return
		}
		p.hrefs = append(p.hrefs, href)
		if abs := p.resolve(href); abs != "" {
			p.links.add(abs)
		}
	case atom.Img:
		if abs := p.resolve(strings.TrimSpace(attr(n, "src"))); abs != "" {
			p.images.add(abs)
		}
	}
}

// resolve keeps absolute http(s) references and root-relative paths.
func (p *page) resolve(ref string) string {
	switch {
	case strings.HasPrefix(ref, "http"):
		return ref
	case strings.HasPrefix(ref, "/") && p.base != nil:
		u, err := p.base.Parse(ref)
		if err != nil {
			return ""
		}
		return u.String()
	default:
		return ""
	}
}

func (p *page) title() string {
	switch {
	case p.titleTag != "":
		return p.titleTag
	case p.meta["og:title"] != "":
		return p.meta["og:title"]
	default:
		return p.firstH1
	}
}

func (p *page) description() string {
	switch {
	case p.meta["description"] != "":
		return p.meta["description"]
	case p.meta["og:description"] != "":
		return p.meta["og:description"]
	default:
		return truncate(p.firstP, maxDescription)
	}
}

func (p *page) keywords() []string {
	kw := newSet()
	if raw := p.meta["keywords"]; raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kw.add(k)
			}
		}
	}
	for _, c := range p.ogContent {
		kw.add(c)
	}
	return kw.first(maxKeywords)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return collapse(sb.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// set keeps insertion order and drops duplicates.
type set struct {
	seen  map[string]bool
	items []string
}

func newSet() *set { return &set{seen: map[string]bool{}} }

func (s *set) add(v string) {
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

func (s *set) first(n int) []string {
	if len(s.items) > n {
		return s.items[:n]
	}
	return s.items
}
