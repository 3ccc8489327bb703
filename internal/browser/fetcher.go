// Package browser implements the page-fetch capability on a headless Chrome driven by rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/fetch"
)

const (
	selUsername   = `input[name="username"]`
	selPassword   = `input[name="password"]`
	selLoginBtn   = `#loginbtn`
	selPortalTab  = `#activates-tab`
	selLangCards  = `.tab-pane.active .faq-card`
	selCourseCard = `.course-cards .card-wrapper`

	loginPath = "login/index.php"
)

const jsTaxonomy = `() => {
	const out = [];
	document.querySelectorAll('.tab-pane.active .faq-card').forEach(card => {
		const a = card.querySelector('.card-heading span a');
		if (!a) return;
		const heading = card.querySelector('.card-heading');
		if (heading && heading.classList.contains('collapsed')) heading.click();
		const levels = [];
		card.querySelectorAll('.faq-card-body li a').forEach(l => {
			if (l.href) levels.push({label: l.textContent.trim(), url: l.href});
		});
		out.push({language: a.textContent.trim(), levels: levels});
	});
	return out;
}`

const jsCourseCards = `() => {
	const info = [];
	document.querySelectorAll('.course-cards .card-wrapper').forEach(card => {
		const a = card.querySelector('.coursename');
		if (a && a.href) info.push({title: a.textContent.trim(), url: a.href});
	});
	return info;
}`

// session is one logged-in incognito browser context plus an HTTP client carrying
// its cookies.
type session struct {
	id        string
	root      *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	launcher  *launcher.Launcher
	client    *http.Client
	dashboard string
	stop      context.CancelFunc

	closeOnce sync.Once
}

func (s *session) ID() string               { return s.id }
func (s *session) HTTPClient() *http.Client { return s.client }

func (s *session) close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		if s.incognito != nil {
			errs = append(errs, s.incognito.Close())
		}
		if s.launcher != nil {
			// we own the process
			if s.root != nil {
				errs = append(errs, s.root.Close())
			}
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		if s.stop != nil {
			s.stop()
		}
	})
	return errors.Join(errs...)
}

// Fetcher drives the learning platform through Chrome. Counting is delegated to a
// ResourceCounter that works off the session's cookies.
type Fetcher struct {
	cfg     common.BrowserConfig
	counter fetch.ResourceCounter
	logger  *slog.Logger
}

var _ fetch.Fetcher = (*Fetcher)(nil)

func NewFetcher(cfg common.BrowserConfig, counter fetch.ResourceCounter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, counter: counter, logger: logger}
}

func asSession(s fetch.Session, op string) (*session, error) {
	bs, ok := s.(*session)
	if !ok || bs == nil {
		return nil, fetch.NewError(fetch.KindSessionUnavailable, op, "", fmt.Errorf("not a browser session: %T", s))
	}
	return bs, nil
}

// Authenticate starts (or connects to) Chrome, opens an incognito tab and logs in.
func (f *Fetcher) Authenticate(ctx context.Context, creds entity.Credentials) (fetch.Session, error) {
	start := time.Now()
	s, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.login(ctx, s, creds); err != nil {
		_ = s.close()
		return nil, err
	}
	f.logger.Info("browser.login.ok",
		"session_id", s.id,
		"username", creds.Username,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return s, nil
}

func (f *Fetcher) open(ctx context.Context) (*session, error) {
	bctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{id: uuid.NewString(), stop: stop}

	controlURL := f.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(bctx).Headless(f.cfg.Headless)
		if f.cfg.Bin != "" {
			l = l.Bin(f.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			stop()
			return nil, fetch.NewError(fetch.KindSessionUnavailable, fetch.OpSessionAcquisition, "", fmt.Errorf("launch chrome: %w", err))
		}
		s.launcher = l
		controlURL = u
	}

	s.root = rod.New().ControlURL(controlURL).Context(bctx)
	if err := s.root.Connect(); err != nil {
		_ = s.close()
		return nil, fetch.NewError(fetch.KindSessionUnavailable, fetch.OpSessionAcquisition, "", fmt.Errorf("connect to chrome: %w", err))
	}

	incognito, err := s.root.Incognito()
	if err != nil {
		_ = s.close()
		return nil, fetch.NewError(fetch.KindSessionUnavailable, fetch.OpSessionAcquisition, "", fmt.Errorf("incognito context: %w", err))
	}
	s.incognito = incognito

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = s.close()
		return nil, fetch.NewError(fetch.KindSessionUnavailable, fetch.OpSessionAcquisition, "", fmt.Errorf("create page: %w", err))
	}
	s.page = page

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		f.logger.Warn("browser.network.enable_failed", "error", err)
	}
	if len(f.cfg.BlockedURLs) > 0 {
		if err := (proto.NetworkSetBlockedURLs{Urls: f.cfg.BlockedURLs}).Call(page); err != nil {
			f.logger.Warn("browser.network.block_failed", "error", err)
		}
	}
	if f.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			f.logger.Warn("browser.user_agent_failed", "error", err)
		}
	}
	return s, nil
}

func (f *Fetcher) login(ctx context.Context, s *session, creds entity.Credentials) error {
	p := s.page.Context(ctx)
	loginURL := f.cfg.LoginURL

	if err := p.Navigate(loginURL); err != nil {
		return fetch.NewError(fetch.KindNetwork, fetch.OpLogin, loginURL, err)
	}
	user, err := p.Element(selUsername)
	if err != nil {
		return fetch.NewError(fetch.KindParse, fetch.OpLogin, loginURL, fmt.Errorf("username field: %w", err))
	}
	if err := user.Input(creds.Username); err != nil {
		return fetch.NewError(fetch.KindParse, fetch.OpLogin, loginURL, err)
	}
	pass, err := p.Element(selPassword)
	if err != nil {
		return fetch.NewError(fetch.KindParse, fetch.OpLogin, loginURL, fmt.Errorf("password field: %w", err))
	}
	if err := pass.Input(creds.Password); err != nil {
		return fetch.NewError(fetch.KindParse, fetch.OpLogin, loginURL, err)
	}
	btn, err := p.Element(selLoginBtn)
	if err != nil {
		return fetch.NewError(fetch.KindParse, fetch.OpLogin, loginURL, fmt.Errorf("login button: %w", err))
	}

	wait := p.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fetch.NewError(fetch.KindNetwork, fetch.OpLogin, loginURL, err)
	}
	wait()

	info, err := p.Info()
	if err != nil {
		return fetch.NewError(fetch.KindNetwork, fetch.OpLogin, loginURL, err)
	}
	if strings.Contains(info.URL, loginPath) {
		return fetch.NewError(fetch.KindBadCredentials, fetch.OpLogin, loginURL, errors.New("still on the login page after submit"))
	}
	s.dashboard = info.URL
	if f.cfg.DashboardURL != "" {
		s.dashboard = f.cfg.DashboardURL
	}

	cookies, err := p.Cookies(nil)
	if err != nil {
		return fetch.NewError(fetch.KindSessionUnavailable, fetch.OpLogin, loginURL, fmt.Errorf("read cookies: %w", err))
	}
	jar, err := cookieJar(info.URL, cookies)
	if err != nil {
		return fetch.NewError(fetch.KindSessionUnavailable, fetch.OpLogin, loginURL, err)
	}
	s.client = &http.Client{Jar: jar}
	return nil
}

// cookieJar copies browser cookies into a jar scoped to pageURL's site.
func cookieJar(pageURL string, cookies []*proto.NetworkCookie) (*cookiejar.Jar, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", pageURL, err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	hc := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		hc = append(hc, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	jar.SetCookies(u, hc)
	return jar, nil
}

// DiscoverTaxonomy opens the language portal tab on the dashboard and reads every
// language card with its level links.
func (f *Fetcher) DiscoverTaxonomy(ctx context.Context, fs fetch.Session) (entity.Taxonomy, error) {
	s, err := asSession(fs, fetch.OpDiscovery)
	if err != nil {
		return nil, err
	}
	p := s.page.Context(ctx)

	if err := p.Navigate(s.dashboard); err != nil {
		return nil, fetch.NewError(fetch.KindNetwork, fetch.OpDiscovery, s.dashboard, err)
	}
	tab, err := p.Element(selPortalTab)
	if err != nil {
		return nil, fetch.NewError(fetch.KindParse, fetch.OpDiscovery, s.dashboard, fmt.Errorf("language portal tab: %w", err))
	}
	if cls, _ := tab.Attribute("class"); cls == nil || !strings.Contains(*cls, "active") {
		if err := tab.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, fetch.NewError(fetch.KindNetwork, fetch.OpDiscovery, s.dashboard, err)
		}
	}
	if _, err := p.Element(selLangCards); err != nil {
		return nil, fetch.NewError(fetch.KindParse, fetch.OpDiscovery, s.dashboard, fmt.Errorf("language cards: %w", err))
	}

	res, err := p.Eval(jsTaxonomy)
	if err != nil {
		return nil, fetch.NewError(fetch.KindParse, fetch.OpDiscovery, s.dashboard, err)
	}
	var tax entity.Taxonomy
	if err := res.Value.Unmarshal(&tax); err != nil {
		return nil, fetch.NewError(fetch.KindParse, fetch.OpDiscovery, s.dashboard, err)
	}
	for _, lang := range tax {
		if len(lang.Levels) == 0 {
			f.logger.Warn("browser.taxonomy.no_levels", "language", lang.Language)
		}
	}
	return tax, nil
}

// ListCourseReferences reads the course cards on a level page. Cards that never show up
// before ctx ends mean the level has no content.
func (f *Fetcher) ListCourseReferences(ctx context.Context, fs fetch.Session, levelURL string) ([]entity.CourseRef, error) {
	s, err := asSession(fs, fetch.OpNavigation)
	if err != nil {
		return nil, err
	}
	p := s.page.Context(ctx)

	if err := p.Navigate(levelURL); err != nil {
		return nil, fetch.NewError(fetch.KindNetwork, fetch.OpNavigation, levelURL, err)
	}
	if _, err := p.Element(selCourseCard); err != nil {
		if ctx.Err() != nil {
			f.logger.Warn("browser.courses.no_cards", "url", levelURL)
			return []entity.CourseRef{}, nil
		}
		return nil, fetch.NewError(fetch.KindParse, fetch.OpNavigation, levelURL, err)
	}

	res, err := p.Eval(jsCourseCards)
	if err != nil {
		return nil, fetch.NewError(fetch.KindParse, fetch.OpNavigation, levelURL, err)
	}
	refs := []entity.CourseRef{}
	if err := res.Value.Unmarshal(&refs); err != nil {
		return nil, fetch.NewError(fetch.KindParse, fetch.OpNavigation, levelURL, err)
	}
	return refs, nil
}

func (f *Fetcher) CountResources(ctx context.Context, s fetch.Session, courseURL string) (int, error) {
	return f.counter.CountResources(ctx, s, courseURL)
}

// Release closes the tab and incognito context, and the browser when this process
// launched it. A nil session is a no-op.
func (f *Fetcher) Release(_ context.Context, fs fetch.Session) error {
	if fs == nil {
		return nil
	}
	s, ok := fs.(*session)
	if !ok || s == nil {
		return nil
	}
	if err := s.close(); err != nil {
		f.logger.Warn("browser.release.partial", "session_id", s.id, "error", err)
		return err
	}
	f.logger.Debug("browser.release.ok", "session_id", s.id)
	return nil
}
