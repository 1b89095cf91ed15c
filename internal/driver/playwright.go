package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ivlev/tour2video/internal/tourspec"
)

// Selectors tried by dismiss_popups, most common consent banners first.
// The code-server trust dialog uses <a role='button'>, not <button>.
var popupSelectors = []string{
	"button:has-text('Accept')",
	"button:has-text('I agree')",
	"button:has-text('Allow all')",
	"button:has-text('Got it')",
	"button:has-text('Close')",
	"text=Accept All",
	"text=Accept all",
	"text=AGREE",
	"#onetrust-accept-btn-handler",
	".cookie-accept",
	".cookie-consent-accept",
	"a[role='button']:has-text('Yes, I trust the authors')",
	"a[role='button']:has-text('Yes, I trust')",
	"button:has-text('Yes, I trust the authors')",
	"button:has-text('Trust folder')",
	"button:has-text('Mark Done')",
}

// PlaywrightBrowser drives a headless Chromium through Playwright. It is
// the only production Browser implementation.
type PlaywrightBrowser struct {
	Log *slog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightBrowser launches the browser named by the tour settings.
// Only chromium records video reliably enough for this pipeline.
func NewPlaywrightBrowser(log *slog.Logger, browserName string) (*PlaywrightBrowser, error) {
	if browserName != "" && browserName != "chromium" {
		return nil, &Error{Op: "launch", Err: fmt.Errorf("unsupported browser %q, only chromium is supported", browserName)}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, &Error{Op: "launch", Err: err}
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		return nil, &Error{Op: "launch", Err: err}
	}
	return &PlaywrightBrowser{Log: log, pw: pw, browser: browser}, nil
}

func (b *PlaywrightBrowser) NewRecording(_ context.Context, opts RecordOptions) (Recording, error) {
	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
		RecordVideo: &playwright.RecordVideo{
			Dir:  opts.ClipDir,
			Size: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
		},
		JavaScriptEnabled: playwright.Bool(true),
	})
	if err != nil {
		return nil, &Error{Op: "open recording context", Err: err}
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, &Error{Op: "open page", Err: err}
	}
	timeoutMS := float64(opts.Timeout.Milliseconds())
	page.SetDefaultTimeout(timeoutMS)
	page.SetDefaultNavigationTimeout(timeoutMS)

	return &playwrightRecording{
		bctx: bctx,
		page: &playwrightPage{log: b.Log, page: page, timeoutMS: timeoutMS},
	}, nil
}

// Restart relaunches the browser process, shedding any wedged renderer or
// extension state between retries.
func (b *PlaywrightBrowser) Restart(_ context.Context) error {
	if err := b.browser.Close(); err != nil {
		b.Log.Warn("browser close during restart failed", "error", err)
	}
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return &Error{Op: "restart", Err: err}
	}
	b.browser = browser
	return nil
}

func (b *PlaywrightBrowser) Close() error {
	err := b.browser.Close()
	if stopErr := b.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

type playwrightRecording struct {
	bctx playwright.BrowserContext
	page *playwrightPage
}

func (r *playwrightRecording) Page() Page { return r.page }

// FinalizeTo closes the context (flushing the video stream) and saves the
// clip. The video handle must be taken before the page goes away.
func (r *playwrightRecording) FinalizeTo(_ context.Context, dest string) error {
	video := r.page.page.Video()
	if video == nil {
		return &Error{Op: "finalize", Err: fmt.Errorf("no video handle on recording context")}
	}
	if err := r.bctx.Close(); err != nil {
		return &Error{Op: "finalize", Err: err}
	}
	if err := video.SaveAs(dest); err != nil {
		return &Error{Op: "finalize", Err: err}
	}
	return nil
}

func (r *playwrightRecording) RawArtifact() (string, error) {
	video := r.page.page.Video()
	if video == nil {
		return "", fmt.Errorf("no video handle on recording context")
	}
	path, err := video.Path()
	if err != nil {
		return "", err
	}
	return path, nil
}

func (r *playwrightRecording) Close() error {
	// Safe after FinalizeTo; closing twice is a no-op error we ignore.
	r.bctx.Close()
	return nil
}

type playwrightPage struct {
	log       *slog.Logger
	page      playwright.Page
	timeoutMS float64
}

func (p *playwrightPage) Navigate(_ context.Context, url string) error {
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(p.timeoutMS),
	}); err != nil {
		return &Error{Op: "navigate", Err: err}
	}
	return nil
}

func (p *playwrightPage) URL() string { return p.page.URL() }

func (p *playwrightPage) RunAssertions(_ context.Context, assertions []tourspec.Assertion) error {
	for _, a := range assertions {
		switch a.Type {
		case tourspec.AssertURLContains:
			if err := p.page.WaitForURL("**"+a.Value+"**", playwright.PageWaitForURLOptions{
				Timeout: playwright.Float(p.timeoutMS),
			}); err != nil {
				return &Error{Op: "assert url_contains", Err: err}
			}
		case tourspec.AssertTitleContains:
			if err := p.waitForTitle(a.Value); err != nil {
				return err
			}
		case tourspec.AssertElementVisible:
			if err := p.page.Locator(a.Value).First().WaitFor(playwright.LocatorWaitForOptions{
				State:   playwright.WaitForSelectorStateVisible,
				Timeout: playwright.Float(p.timeoutMS),
			}); err != nil {
				return &Error{Op: "assert element_visible", Err: err}
			}
		default:
			return &Error{Op: "assert", Err: fmt.Errorf("unknown assertion type %q", a.Type)}
		}
	}
	return nil
}

func (p *playwrightPage) waitForTitle(value string) error {
	deadline := time.Now().Add(time.Duration(p.timeoutMS) * time.Millisecond)
	for time.Now().Before(deadline) {
		title, err := p.page.Title()
		if err == nil && strings.Contains(strings.ToLower(title), strings.ToLower(value)) {
			return nil
		}
		p.page.WaitForTimeout(200)
	}
	return &Error{Op: "assert title_contains", Err: fmt.Errorf("title does not contain %q", value)}
}

// RunActions executes the step's action list. Most actions are fail-soft
// like a human demonstrator: a missed click or slow animation is logged
// and the tour moves on rather than scrapping the whole take.
func (p *playwrightPage) RunActions(ctx context.Context, actions []tourspec.Action) error {
	for _, a := range actions {
		if err := p.runAction(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (p *playwrightPage) runAction(ctx context.Context, a tourspec.Action) error {
	switch a.Type {
	case tourspec.ActionWaitForLoad:
		if err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: playwright.Float(p.timeoutMS),
		}); err != nil {
			return &Error{Op: "wait_for_load", Err: err}
		}
		if err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(minMS(15000, p.timeoutMS)),
		}); err != nil {
			p.log.Info("networkidle timed out, continuing with domcontentloaded")
		}

	case tourspec.ActionDismissPopups:
		if count := p.dismissPopups(); count > 0 {
			p.log.Info("dismissed popup elements", "count", count)
		}

	case tourspec.ActionPause:
		duration := a.Duration
		if duration <= 0 {
			duration = 1
		}
		p.page.WaitForTimeout(duration * 1000)

	case tourspec.ActionWaitForHidden:
		if a.Selector == "" {
			return nil
		}
		err := p.page.Locator(a.Selector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateHidden,
			Timeout: playwright.Float(minMS(10000, p.timeoutMS)),
		})
		if err != nil {
			p.log.Info("wait for hidden element timed out, continuing", "selector", a.Selector)
		}

	case tourspec.ActionScroll:
		p.smoothScroll(a.To, a.Speed, a.PauseAtBottom)

	case tourspec.ActionTypeText:
		delay := a.DelayMS
		if delay == 0 {
			delay = 50
		}
		p.log.Info("typing text", "chars", len(a.Text), "delay_ms", delay)
		if err := p.page.Keyboard().Type(a.Text, playwright.KeyboardTypeOptions{
			Delay: playwright.Float(float64(delay)),
		}); err != nil {
			p.log.Warn("type_text failed, continuing", "error", err)
		}

	case tourspec.ActionPressKey:
		key := strings.TrimSpace(a.Key)
		if key == "" {
			p.log.Warn("press_key missing key, skipping")
			return nil
		}
		p.log.Info("pressing key", "key", key)
		if err := p.page.Keyboard().Press(key); err != nil {
			p.log.Warn("press_key failed, continuing", "error", err)
		}

	case tourspec.ActionClickSelector:
		selector := strings.TrimSpace(a.Selector)
		if selector == "" {
			p.log.Warn("click_selector missing selector, skipping")
			return nil
		}
		timeout := p.timeoutMS
		if a.TimeoutMS > 0 {
			timeout = float64(a.TimeoutMS)
		}
		p.log.Info("clicking selector", "selector", selector, "timeout_ms", timeout)
		if err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(timeout),
		}); err != nil {
			p.log.Warn("click_selector failed, continuing", "error", err)
		}

	case tourspec.ActionFocusEditor:
		p.log.Info("focusing editor area")
		if err := p.page.Locator(".monaco-editor .view-lines").First().Click(); err != nil {
			p.log.Warn("focus_editor failed, continuing", "error", err)
		}

	case tourspec.ActionCommandPalette:
		p.log.Info("opening command palette", "command", a.Command)
		p.page.Keyboard().Press("Control+Shift+p")
		p.page.WaitForTimeout(500)
		if a.Command != "" {
			p.page.Keyboard().Type(a.Command, playwright.KeyboardTypeOptions{Delay: playwright.Float(30)})
		}
		if err := p.page.Keyboard().Press("Enter"); err != nil {
			p.log.Warn("command_palette failed, continuing", "error", err)
		}

	case tourspec.ActionTerminalType:
		p.terminalType(a)

	case tourspec.ActionWaitForSelector:
		selector := strings.TrimSpace(a.Selector)
		if selector == "" {
			p.log.Warn("wait_for_selector missing selector, skipping")
			return nil
		}
		state := playwright.WaitForSelectorStateVisible
		if a.State == "hidden" {
			state = playwright.WaitForSelectorStateHidden
		}
		timeout := p.timeoutMS
		if a.TimeoutMS > 0 {
			timeout = float64(a.TimeoutMS)
		}
		p.log.Info("waiting for selector", "selector", selector, "state", a.State)
		if err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   state,
			Timeout: playwright.Float(timeout),
		}); err != nil {
			p.log.Warn("wait_for_selector failed, continuing", "error", err)
		}

	case tourspec.ActionSelectAllDelete:
		p.log.Info("selecting all and deleting")
		p.page.Keyboard().Press("Control+a")
		if err := p.page.Keyboard().Press("Backspace"); err != nil {
			p.log.Warn("select_all_and_delete failed, continuing", "error", err)
		}

	case tourspec.ActionHighlightLines:
		p.highlightLines(a)

	case tourspec.ActionHideSecondarySidebar:
		p.log.Info("hiding secondary sidebar")
		_, err := p.page.Evaluate(`() => {
			const aux = document.getElementById('workbench.parts.auxiliarybar');
			if (aux) aux.remove();
			document.querySelectorAll('.auxiliarybar').forEach(el => el.remove());
			window.dispatchEvent(new Event('resize'));
		}`)
		if err != nil {
			p.log.Warn("hide_secondary_sidebar failed", "error", err)
		}
		p.page.WaitForTimeout(500)

	default:
		return &Error{Op: "action", Err: fmt.Errorf("unknown action type %q", a.Type)}
	}
	return nil
}

// terminalType focuses the active terminal's hidden textarea through JS;
// a plain click fails because editor folding icons intercept the pointer.
func (p *playwrightPage) terminalType(a tourspec.Action) {
	pressEnter := a.PressEnter == nil || *a.PressEnter
	p.log.Info("typing terminal command", "text", a.Text, "press_enter", pressEnter)

	focused, err := p.page.Evaluate(`() => {
		const active = document.querySelector('.terminal-wrapper.active');
		if (!active) return 'no-active-wrapper';
		const ta = active.querySelector('textarea.xterm-helper-textarea');
		if (!ta) return 'no-textarea';
		ta.focus();
		return 'focused';
	}`)
	if err != nil || focused != "focused" {
		p.log.Info("terminal focus fell back to forced click", "result", focused, "error", err)
		if clickErr := p.page.Locator(".terminal-wrapper.active").First().Click(playwright.LocatorClickOptions{
			Force: playwright.Bool(true),
		}); clickErr != nil {
			p.log.Warn("terminal_type failed, continuing", "error", clickErr)
			return
		}
	}
	p.page.WaitForTimeout(300)
	p.page.Keyboard().Type(a.Text, playwright.KeyboardTypeOptions{Delay: playwright.Float(0)})
	if pressEnter {
		if err := p.page.Keyboard().Press("Enter"); err != nil {
			p.log.Warn("terminal_type failed, continuing", "error", err)
		}
	}
}

// highlightLines jumps to a line with Ctrl+G and extends the selection
// down, the way a presenter highlights a code range.
func (p *playwrightPage) highlightLines(a tourspec.Action) {
	from := a.FromLine
	if from < 1 {
		from = 1
	}
	to := a.ToLine
	if to < from {
		to = from
	}
	p.log.Info("highlighting lines", "from", from, "to", to)

	p.page.Keyboard().Press("Control+g")
	p.page.WaitForTimeout(120)
	p.page.Keyboard().Type(strconv.Itoa(from), playwright.KeyboardTypeOptions{Delay: playwright.Float(0)})
	p.page.Keyboard().Press("Enter")
	p.page.WaitForTimeout(120)
	for i := 0; i < to-from; i++ {
		if err := p.page.Keyboard().Press("Shift+ArrowDown"); err != nil {
			p.log.Warn("highlight_lines failed, continuing", "error", err)
			return
		}
	}
}

func (p *playwrightPage) dismissPopups() int {
	clicked := 0
	for _, selector := range popupSelectors {
		locator := p.page.Locator(selector).First()
		count, err := locator.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := locator.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(minMS(1200, p.timeoutMS)),
			Force:   playwright.Bool(true),
		}); err != nil {
			continue
		}
		clicked++
		p.page.WaitForTimeout(200)
	}
	return clicked
}

func (p *playwrightPage) Scroll(_ context.Context, scroll *tourspec.Scroll) error {
	if scroll == nil {
		return nil
	}
	p.smoothScroll(scroll.To, scroll.Speed, scroll.PauseAtBottom)
	return nil
}

// smoothScroll animates the viewport to the target and waits long enough
// for the browser's smooth scrolling to settle on camera.
func (p *playwrightPage) smoothScroll(to, speed string, pauseAtBottom float64) {
	durations := map[string]float64{"slow": 1600, "medium": 1100, "fast": 700}
	duration, ok := durations[strings.ToLower(speed)]
	if !ok {
		duration = durations["medium"]
	}

	var err error
	switch strings.ToLower(to) {
	case "", "bottom":
		_, err = p.page.Evaluate(`() => {
			const delta = Math.max(document.body.scrollHeight, document.documentElement.scrollHeight);
			window.scrollBy({ top: delta, behavior: 'smooth' });
		}`)
	case "top":
		_, err = p.page.Evaluate(`() => window.scrollTo({ top: 0, behavior: 'smooth' })`)
	default:
		target, convErr := strconv.Atoi(to)
		if convErr != nil {
			p.log.Warn("scroll target not understood, skipping", "to", to)
			return
		}
		_, err = p.page.Evaluate(`(y) => {
			const current = window.scrollY || window.pageYOffset || 0;
			window.scrollBy({ top: y - current, behavior: 'smooth' });
		}`, target)
	}
	if err != nil {
		p.log.Warn("scroll failed, continuing", "error", err)
		return
	}
	p.page.WaitForTimeout(duration)
	if pauseAtBottom > 0 {
		p.page.WaitForTimeout(pauseAtBottom * 1000)
	}
}

func (p *playwrightPage) Hold(_ context.Context, d time.Duration) error {
	p.page.WaitForTimeout(float64(d.Milliseconds()))
	return nil
}

func (p *playwrightPage) Screenshot(_ context.Context, path string) error {
	if _, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return &Error{Op: "screenshot", Err: err}
	}
	return nil
}

func minMS(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
