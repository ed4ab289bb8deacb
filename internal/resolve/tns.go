package resolve

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/unit"
	"golang.org/x/net/html"

	"github.com/leapstack-labs/galsynth/internal/catalog"
	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// DefaultTNSSearchURL is the TNS web search endpoint.
const DefaultTNSSearchURL = "https://www.wis-tns.org/search"

// TNS rejects requests that do not look like they come from a browser.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_10_1) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/39.0.2171.95 Safari/537.36"

// TNS searches the Transient Name Server.
type TNS struct {
	searchURL string
	http      *httpclient.Client
	logger    *slog.Logger
}

// NewTNS creates a TNS client. cfg's user agent and timeout are replaced by
// a browser user agent and 10s.
func NewTNS(searchURL string, cfg httpclient.Config, logger *slog.Logger) *TNS {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if searchURL == "" {
		searchURL = DefaultTNSSearchURL
	}
	cfg.UserAgent = browserUserAgent
	cfg.Timeout = 10 * time.Second
	return &TNS{
		searchURL: searchURL,
		http:      httpclient.New(cfg, httpclient.WithLogger(logger)),
		logger:    logger,
	}
}

// Search runs one CSV search by TNS name, or by survey-internal name.
func (t *TNS) Search(ctx context.Context, name string, internal bool) ([]catalog.Row, error) {
	key := "name"
	if internal {
		key = "internal_name"
	}
	stripped, err := StripTNSName(name)
	if err != nil {
		return nil, err
	}

	resp, err := t.http.Get(ctx, t.searchURL, url.Values{
		key:           {stripped},
		"include_frb": {"0"},
		"format":      {"csv"},
		"page":        {"0"},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("TNS search failed: %w", err)
	}
	if forbiddenPage(resp.Body) {
		t.logger.Error("TNS access forbidden, check the network connection or TNS status")
		return nil, fmt.Errorf("%w: TNS access forbidden", core.ErrExternalService)
	}
	return catalog.ParseCSV(bytes.NewReader(resp.Body))
}

// Download searches by name, then by internal name, and converts the first
// match.
func (t *TNS) Download(ctx context.Context, name string) (*SourceInfo, error) {
	rows, err := t.Search(ctx, name, false)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		rows, err = t.Search(ctx, name, true)
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no TNS data found for %s: %w", name, core.ErrNoData)
	}
	return infoFromRow(name, rows[0])
}

func infoFromRow(name string, row catalog.Row) (*SourceInfo, error) {
	ra, err := ParseRA(row["RA"])
	if err != nil {
		return nil, err
	}
	dec, err := ParseDec(row["DEC"])
	if err != nil {
		return nil, err
	}
	info := &SourceInfo{
		Name:   name,
		RA:     ra,
		Dec:    dec,
		Origin: "tns",
		Fields: map[string]string(row),
	}
	if z, ok := row.Float("Redshift"); ok {
		info.Redshift = &z
	}
	return info, nil
}

// forbiddenPage reports whether body is an HTML error page mentioning
// "Forbidden" rather than CSV.
func forbiddenPage(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	doc, err := html.Parse(bytes.NewReader(trimmed))
	if err != nil {
		return false
	}
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Contains(text.String(), "Forbidden")
}

// ParseRA accepts "hh:mm:ss.s", "hh mm ss.s" or decimal degrees.
func ParseRA(s string) (float64, error) {
	parts, ok := sexagesimal(s)
	if !ok {
		return parseDegrees(s, "RA")
	}
	h, m, sec, err := hms(parts)
	if err != nil || h < 0 || h >= 24 {
		return 0, core.Validationf("invalid RA %q", s)
	}
	return unit.NewRA(h, m, sec).Deg(), nil
}

// ParseDec accepts "±dd:mm:ss.s", "±dd mm ss.s" or decimal degrees.
func ParseDec(s string) (float64, error) {
	parts, ok := sexagesimal(s)
	if !ok {
		return parseDegrees(s, "Dec")
	}
	var neg byte
	if strings.HasPrefix(parts[0], "-") {
		neg = '-'
	}
	parts[0] = strings.TrimLeft(parts[0], "+-")
	d, m, sec, err := hms(parts)
	if err != nil || d > 90 {
		return 0, core.Validationf("invalid Dec %q", s)
	}
	return unit.NewAngle(neg, d, m, sec).Deg(), nil
}

func sexagesimal(s string) ([]string, bool) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == ':' || r == ' ' })
	return parts, len(parts) == 3
}

func hms(parts []string) (int, int, float64, error) {
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil || b < 0 || b >= 60 {
		return 0, 0, 0, fmt.Errorf("bad minutes %q", parts[1])
	}
	c, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || c < 0 || c >= 60 {
		return 0, 0, 0, fmt.Errorf("bad seconds %q", parts[2])
	}
	return a, b, c, nil
}

func parseDegrees(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, core.Validationf("invalid %s %q", what, s)
	}
	return v, nil
}
