package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the slice of browser-page behavior the checkers need. Kept
// narrow so checker logic can run against a fake in tests.
type Page interface {
	Goto(url string, timeout time.Duration) error
	BlockResources(types []string) error
	WaitForContent(selector string, timeout time.Duration) error
	Evaluate(script string) (interface{}, error)
	Content() (string, error)
	Close() error
}

// PlaywrightLauncher owns the playwright driver process and launches
// Chromium instances for the pool.
type PlaywrightLauncher struct {
	pw *playwright.Playwright
}

func NewPlaywrightLauncher() (*PlaywrightLauncher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &PlaywrightLauncher{pw: pw}, nil
}

// Launch starts one headless Chromium. Satisfies LaunchFunc via method value.
func (l *PlaywrightLauncher) Launch() (Instance, error) {
	b, err := l.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-gpu",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &pwInstance{browser: b}, nil
}

func (l *PlaywrightLauncher) Stop() error {
	return l.pw.Stop()
}

type pwInstance struct {
	browser playwright.Browser
}

func (i *pwInstance) NewPage() (Page, error) {
	page, err := i.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		Viewport:  &playwright.Size{Width: 1280, Height: 900},
	})
	if err != nil {
		return nil, err
	}
	return &pwPage{page: page}, nil
}

func (i *pwInstance) IsConnected() bool {
	return i.browser.IsConnected()
}

func (i *pwInstance) Close() error {
	return i.browser.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

// BlockResources aborts requests for the given resource types (images,
// fonts, stylesheets) so listing pages load faster.
func (p *pwPage) BlockResources(types []string) error {
	if len(types) == 0 {
		return nil
	}
	blocked := make(map[string]bool, len(types))
	for _, t := range types {
		blocked[t] = true
	}
	return p.page.Route("**/*", func(route playwright.Route) {
		if blocked[route.Request().ResourceType()] {
			route.Abort()
			return
		}
		route.Continue()
	})
}

func (p *pwPage) WaitForContent(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *pwPage) Evaluate(script string) (interface{}, error) {
	return p.page.Evaluate(script)
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Close() error {
	return p.page.Close()
}
