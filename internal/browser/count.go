package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joseph-ayodele/skills-audit/internal/fetch"
)

const maxCoursePageBytes = 16 << 20

// CountRules decides which DOM nodes on a course page are learning resources.
// Any match that contains a Hidden node is an inactive activity and is skipped.
type CountRules struct {
	Selectors []string
	// Video counts div.video-js players that wrap a <video> and no <audio>.
	Video  bool
	Hidden string
}

// DefaultCountRules returns the platform's resource selectors.
func DefaultCountRules(includeVideo bool) CountRules {
	return CountRules{
		Selectors: []string{
			"div.h5p-placeholder",
			"li.resource",
			"li.h5pactivity",
			"li.modtype_assign",
		},
		Video:  includeVideo,
		Hidden: ".hiddenactivity",
	}
}

func (r CountRules) visible(sel *goquery.Selection) bool {
	return r.Hidden == "" || sel.Find(r.Hidden).Length() == 0
}

// Count applies the rules to a parsed page.
func (r CountRules) Count(doc *goquery.Document) int {
	total := 0
	for _, s := range r.Selectors {
		total += doc.Find(s).FilterFunction(func(_ int, sel *goquery.Selection) bool {
			return r.visible(sel)
		}).Length()
	}
	if r.Video {
		total += doc.Find("div.video-js").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			return sel.Find("video").Length() > 0 && sel.Find("audio").Length() == 0 && r.visible(sel)
		}).Length()
	}
	return total
}

// CountHTML parses markup and applies the rules.
func CountHTML(body io.Reader, rules CountRules) (int, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return 0, err
	}
	return rules.Count(doc), nil
}

// httpSession is a session that can fetch pages with its authenticated cookies.
type httpSession interface {
	fetch.Session
	HTTPClient() *http.Client
}

// PageCounter fetches course markup over plain HTTP with the session's cookies, so
// concurrent counts never touch the browser tab.
type PageCounter struct {
	rules     CountRules
	logger    *slog.Logger
	userAgent string
	loginPath string
}

func NewPageCounter(rules CountRules, userAgent string, logger *slog.Logger) *PageCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageCounter{rules: rules, logger: logger, userAgent: userAgent, loginPath: "/login/index.php"}
}

func (c *PageCounter) CountResources(ctx context.Context, s fetch.Session, courseURL string) (int, error) {
	hs, ok := s.(httpSession)
	if !ok || hs == nil {
		return 0, fetch.NewError(fetch.KindSessionUnavailable, fetch.OpCourseFetch, courseURL, fmt.Errorf("session %T cannot fetch pages", s))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, courseURL, nil)
	if err != nil {
		return 0, fetch.NewError(fetch.KindParse, fetch.OpCourseFetch, courseURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := hs.HTTPClient().Do(req)
	if err != nil {
		return 0, fetch.NewError(fetch.KindNetwork, fetch.OpCourseFetch, courseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fetch.NewError(fetch.KindNetwork, fetch.OpCourseFetch, courseURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if resp.Request != nil && strings.Contains(resp.Request.URL.Path, c.loginPath) {
		return 0, fetch.NewError(fetch.KindBadCredentials, fetch.OpCourseFetch, courseURL, fmt.Errorf("redirected to login, session expired"))
	}

	n, err := CountHTML(io.LimitReader(resp.Body, maxCoursePageBytes), c.rules)
	if err != nil {
		return 0, fetch.NewError(fetch.KindParse, fetch.OpCourseFetch, courseURL, err)
	}
	c.logger.Debug("browser.course.counted", "url", courseURL, "total", n)
	return n, nil
}
