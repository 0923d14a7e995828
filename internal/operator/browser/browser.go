// Package browser implements the Operator contract over a Chrome instance
// driven through the DevTools protocol. One operator owns one browser
// process and one tab for its whole lifetime.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/operator"
)

const operatorName = "browser"

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultWaitTimeout       = 30 * time.Second
	defaultWindowWidth       = 1280
	defaultWindowHeight      = 800
)

func init() {
	operator.Register(config.OperatorBrowser, func(logger *zap.Logger) operator.Operator {
		return &Operator{logger: logger.Named("browser_operator")}
	})
}

// Operator drives a single Chrome tab. The allocator context and the tab
// context are created at Initialize and torn down at Cleanup.
type Operator struct {
	logger *zap.Logger
	cfg    config.BrowserSettings

	mu          sync.Mutex
	ready       bool
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

func (o *Operator) Name() string { return operatorName }

func (o *Operator) Capabilities() []operator.Capability {
	return []operator.Capability{
		{Type: schemas.ActionClick, Optional: []string{"selector", "x", "y", "button"}},
		{Type: schemas.ActionDoubleClick, Optional: []string{"selector", "x", "y"}},
		{Type: schemas.ActionRightClick, Optional: []string{"selector", "x", "y"}},
		{Type: schemas.ActionTypeText, Required: []string{"text"}, Optional: []string{"selector"}},
		{Type: schemas.ActionKey, Required: []string{"key"}},
		{Type: schemas.ActionScroll, Optional: []string{"direction", "clicks", "selector"},
			Defaults: map[string]interface{}{"direction": "down", "clicks": 3}},
		{Type: schemas.ActionWait, Optional: []string{"selector", "duration_ms"},
			Defaults: map[string]interface{}{"duration_ms": 1000}},
		{Type: schemas.ActionScreenshot},
		{Type: schemas.ActionNavigate, Required: []string{"url"}},
	}
}

func (o *Operator) Supports(t schemas.ActionType) bool {
	return operator.SupportsType(o.Capabilities(), t)
}

// Initialize launches Chrome and opens the tab the operator will drive.
func (o *Operator) Initialize(ctx context.Context, cfg config.OperatorConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ready {
		return schemas.NewOperatorError(schemas.ErrCodeAlreadyInitialized, operatorName, "",
			"operator already initialized", nil)
	}
	o.cfg = cfg.Browser

	width, height := o.cfg.WindowWidth, o.cfg.WindowHeight
	if width <= 0 {
		width = defaultWindowWidth
	}
	if height <= 0 {
		height = defaultWindowHeight
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", o.cfg.Headless),
		chromedp.WindowSize(width, height),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
	)
	if o.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.cfg.ExecPath))
	}
	if o.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.cfg.UserAgent))
	}

	// The tab must outlive the initialize call, so it hangs off Background
	// rather than the caller's ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(tabCtx, o.navigationTimeout())
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		allocCancel()
		return schemas.NewOperatorError(schemas.ErrCodeBackendUnavailable, operatorName, "",
			"failed to launch browser", err)
	}

	o.allocCancel = allocCancel
	o.tabCtx = tabCtx
	o.tabCancel = tabCancel
	o.ready = true
	o.logger.Info("Browser operator initialized.",
		zap.Bool("headless", o.cfg.Headless),
		zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (o *Operator) navigationTimeout() time.Duration {
	if o.cfg.NavigationTimeout > 0 {
		return o.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (o *Operator) waitTimeout() time.Duration {
	if o.cfg.WaitTimeout > 0 {
		return o.cfg.WaitTimeout
	}
	return defaultWaitTimeout
}

// run executes chromedp actions bounded by both the tab lifetime and the
// caller's context.
func (o *Operator) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	o.mu.Lock()
	tabCtx, ready := o.tabCtx, o.ready
	o.mu.Unlock()
	if !ready {
		return schemas.NewOperatorError(schemas.ErrCodeNotInitialized, operatorName, "",
			"operator not initialized", nil)
	}

	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Execute dispatches a single action against the tab. Failures come back
// inside the result so the caller's loop can keep going.
func (o *Operator) Execute(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	start := time.Now()
	result := o.execute(ctx, action)
	result.Duration = time.Since(start)
	return result
}

func (o *Operator) execute(ctx context.Context, action schemas.Action) *schemas.ActionResult {
	if !o.Supports(action.Type) {
		return operator.UnsupportedResult(operatorName, action)
	}

	var err error
	var data interface{}
	switch action.Type {
	case schemas.ActionNavigate:
		data, err = o.navigate(ctx, action)
	case schemas.ActionClick:
		err = o.click(ctx, action, "left", 1)
	case schemas.ActionDoubleClick:
		err = o.click(ctx, action, "left", 2)
	case schemas.ActionRightClick:
		err = o.click(ctx, action, "right", 1)
	case schemas.ActionTypeText:
		err = o.typeText(ctx, action)
	case schemas.ActionKey:
		err = o.sendKey(ctx, action)
	case schemas.ActionScroll:
		err = o.scroll(ctx, action)
	case schemas.ActionWait:
		err = o.wait(ctx, action)
	case schemas.ActionScreenshot:
		var shot *schemas.Screenshot
		shot, err = o.Capture(ctx)
		if err == nil {
			res := operator.OKResult(action, nil)
			res.Screenshot = shot
			return res
		}
	}

	if err != nil {
		o.logger.Debug("Browser action failed.",
			zap.String("type", string(action.Type)), zap.Error(err))
		return operator.FailedResult(action, err)
	}
	return operator.OKResult(action, data)
}

// navigate loads a URL and waits for the document to settle before
// returning, so the screenshot in the next iteration sees a stable page.
func (o *Operator) navigate(ctx context.Context, action schemas.Action) (interface{}, error) {
	url := action.Text
	if v, ok := action.StringParam("url"); ok {
		url = v
	}
	if url == "" {
		return nil, schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName,
			action.Type, "navigate requires a url", nil)
	}
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	err := o.run(ctx, o.navigationTimeout(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, schemas.NewOperatorError(schemas.ErrCodeNavigationError, operatorName,
			action.Type, fmt.Sprintf("navigation to %s failed", url), err)
	}
	if o.cfg.PostLoadWait > 0 {
		select {
		case <-time.After(o.cfg.PostLoadWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var finalURL, title string
	if err := o.run(ctx, o.waitTimeout(),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
	); err != nil {
		// Navigation itself succeeded; the page info is best effort.
		o.logger.Debug("Could not read post-navigation page info.", zap.Error(err))
		return map[string]string{"url": url}, nil
	}
	return map[string]string{"url": finalURL, "title": title}, nil
}

// click targets a selector when one is given, otherwise raw viewport
// coordinates.
func (o *Operator) click(ctx context.Context, action schemas.Action, button string, count int) error {
	if b, ok := action.StringParam("button"); ok {
		button = b
	}

	if selector, ok := action.StringParam("selector"); ok && selector != "" {
		task := chromedp.QueryAfter(selector,
			func(ctx context.Context, execCtx runtime.ExecutionContextID, nodes ...*cdp.Node) error {
				if len(nodes) == 0 {
					return fmt.Errorf("no nodes matched %q", selector)
				}
				return chromedp.MouseClickNode(nodes[0],
					chromedp.ClickCount(count), chromedp.Button(button)).Do(ctx)
			},
			chromedp.ByQuery, chromedp.NodeVisible)
		if err := o.run(ctx, o.waitTimeout(), task); err != nil {
			return schemas.NewOperatorError(schemas.ErrCodeElementNotFound, operatorName,
				action.Type, fmt.Sprintf("click on %q failed", selector), err)
		}
		return nil
	}

	x, y, ok := action.Coordinates()
	if !ok {
		return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName,
			action.Type, "click requires a selector or x/y coordinates", nil)
	}
	task := chromedp.MouseClickXY(x, y,
		chromedp.ClickCount(count), chromedp.Button(button))
	if err := o.run(ctx, o.waitTimeout(), task); err != nil {
		return schemas.NewOperatorError(schemas.ErrCodeExecutionFailed, operatorName,
			action.Type, fmt.Sprintf("click at (%.0f, %.0f) failed", x, y), err)
	}
	return nil
}

// typeText sends keystrokes to a selector, or to the focused element when
// no selector is given.
func (o *Operator) typeText(ctx context.Context, action schemas.Action) error {
	text := action.Text
	if v, ok := action.StringParam("text"); ok {
		text = v
	}
	if text == "" {
		return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName,
			action.Type, "type requires text", nil)
	}

	var task chromedp.Action
	if selector, ok := action.StringParam("selector"); ok && selector != "" {
		task = chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.NodeVisible)
	} else {
		task = chromedp.KeyEvent(text)
	}
	if err := o.run(ctx, o.waitTimeout(), task); err != nil {
		return schemas.NewOperatorError(schemas.ErrCodeExecutionFailed, operatorName,
			action.Type, "typing failed", err)
	}
	return nil
}

// chromeKeys maps the agent's key vocabulary to DOM key values.
var chromeKeys = map[string]string{
	"enter": "\r", "return": "\r", "tab": "\t", "escape": "",
	"esc": "", "backspace": "\b", "delete": "",
	"up": "", "down": "", "left": "", "right": "",
	"home": "", "end": "", "pageup": "", "pagedown": "",
}

func (o *Operator) sendKey(ctx context.Context, action schemas.Action) error {
	key, ok := action.StringParam("key")
	if !ok || key == "" {
		return schemas.NewOperatorError(schemas.ErrCodeInvalidParameters, operatorName,
			action.Type, "key requires params.key", nil)
	}
	seq := key
	if mapped, found := chromeKeys[strings.ToLower(key)]; found {
		seq = mapped
	}
	if err := o.run(ctx, o.waitTimeout(), chromedp.KeyEvent(seq)); err != nil {
		return schemas.NewOperatorError(schemas.ErrCodeExecutionFailed, operatorName,
			action.Type, fmt.Sprintf("key %q failed", key), err)
	}
	return nil
}

func (o *Operator) scroll(ctx context.Context, action schemas.Action) error {
	direction := "down"
	if v, ok := action.StringParam("direction"); ok {
		direction = strings.ToLower(v)
	}
	clicks := 3.0
	if v, ok := action.FloatParam("clicks"); ok && v > 0 {
		clicks = v
	}
	delta := 120 * clicks
	if direction == "up" {
		delta = -delta
	}

	script := fmt.Sprintf("window.scrollBy(0, %.0f)", delta)
	if selector, ok := action.StringParam("selector"); ok && selector != "" {
		script = fmt.Sprintf("document.querySelector(%q).scrollBy(0, %.0f)", selector, delta)
	}
	if err := o.run(ctx, o.waitTimeout(), chromedp.Evaluate(script, nil)); err != nil {
		return schemas.NewOperatorError(schemas.ErrCodeExecutionFailed, operatorName,
			action.Type, "scroll failed", err)
	}
	return nil
}

// wait blocks on a selector becoming visible when one is given, otherwise
// sleeps for duration_ms.
func (o *Operator) wait(ctx context.Context, action schemas.Action) error {
	if selector, ok := action.StringParam("selector"); ok && selector != "" {
		if err := o.run(ctx, o.waitTimeout(),
			chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
			return schemas.NewOperatorError(schemas.ErrCodeTimeout, operatorName,
				action.Type, fmt.Sprintf("wait for %q timed out", selector), err)
		}
		return nil
	}

	duration := time.Second
	if ms, ok := action.FloatParam("duration_ms"); ok && ms >= 0 {
		duration = time.Duration(ms) * time.Millisecond
	}
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Capture takes a viewport screenshot of the current tab.
func (o *Operator) Capture(ctx context.Context) (*schemas.Screenshot, error) {
	var buf []byte
	if err := o.run(ctx, o.waitTimeout(), chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, schemas.NewOperatorError(schemas.ErrCodeExecutionFailed, operatorName,
			schemas.ActionScreenshot, "screenshot capture failed", err)
	}
	format, ok := schemas.DetectImageFormat(buf)
	if !ok {
		return nil, schemas.NewOperatorError(schemas.ErrCodeMalformedImage, operatorName,
			schemas.ActionScreenshot, "capture produced unrecognized image data", nil)
	}

	var width, height int
	if err := o.run(ctx, o.waitTimeout(),
		chromedp.Evaluate("window.innerWidth", &width),
		chromedp.Evaluate("window.innerHeight", &height),
	); err != nil {
		o.logger.Debug("Could not read viewport size.", zap.Error(err))
	}

	return &schemas.Screenshot{
		ID:        uuid.New().String(),
		Data:      buf,
		Width:     width,
		Height:    height,
		Format:    format,
		Timestamp: time.Now().UTC(),
	}, nil
}

// CurrentURL reports the tab's location, for mode arbitration and logging.
func (o *Operator) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := o.run(ctx, o.waitTimeout(), chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Title reports the current document title.
func (o *Operator) Title(ctx context.Context) (string, error) {
	var title string
	if err := o.run(ctx, o.waitTimeout(), chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// EvaluateScript runs a JavaScript expression in the page and decodes the
// result into out. Pass nil to discard the result.
func (o *Operator) EvaluateScript(ctx context.Context, script string, out interface{}) error {
	return o.run(ctx, o.waitTimeout(), chromedp.Evaluate(script, out))
}

// ElementText returns the trimmed innerText of the first match.
func (o *Operator) ElementText(ctx context.Context, selector string) (string, error) {
	var text string
	if err := o.run(ctx, o.waitTimeout(),
		chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return "", schemas.NewOperatorError(schemas.ErrCodeElementNotFound, operatorName, "",
			fmt.Sprintf("no visible element for %q", selector), err)
	}
	return strings.TrimSpace(text), nil
}

// ElementVisible reports whether the selector matches a visible element,
// without waiting for one to appear.
func (o *Operator) ElementVisible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (!el) return false;
		 const r = el.getBoundingClientRect(); return r.width > 0 && r.height > 0; })()`, selector)
	if err := o.run(ctx, o.waitTimeout(), chromedp.Evaluate(script, &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

// Cleanup tears down the tab and the browser process. Safe to call twice.
func (o *Operator) Cleanup() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready {
		return nil
	}
	if o.tabCancel != nil {
		o.tabCancel()
	}
	if o.allocCancel != nil {
		o.allocCancel()
	}
	o.tabCtx = nil
	o.tabCancel = nil
	o.allocCancel = nil
	o.ready = false
	o.logger.Info("Browser operator closed.")
	return nil
}
