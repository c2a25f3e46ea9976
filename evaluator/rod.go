package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodBrowser drives a headless Chromium. Each Open gets its own tab.
type RodBrowser struct {
	browser   *rod.Browser
	opTimeout time.Duration
}

// NewRodBrowser launches Chromium. An empty bin lets the launcher find or
// download a browser.
func NewRodBrowser(ctx context.Context, bin string) (*RodBrowser, error) {
	l := launcher.New().Headless(true)
	if bin != "" {
		l = l.Bin(bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return &RodBrowser{browser: browser, opTimeout: 10 * time.Second}, nil
}

func (b *RodBrowser) Open(ctx context.Context, url string) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	nav := page.Context(ctx)

	status := 0
	wait := nav.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			status = e.Response.Status
			return true
		}
		return false
	})
	if err := nav.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate: %w", err)
	}
	wait()
	if err := nav.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("wait for load: %w", err)
	}
	if status != 200 {
		_ = page.Close()
		return nil, fmt.Errorf("page answered with status %d", status)
	}
	return &rodPage{page: page, timeout: b.opTimeout}, nil
}

func (b *RodBrowser) Close() error {
	return b.browser.Close()
}

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
}

func (p *rodPage) Title() (string, error) {
	info, err := p.page.Timeout(p.timeout).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *rodPage) Has(selector string) (bool, error) {
	has, _, err := p.page.Timeout(p.timeout).Has(selector)
	return has, err
}

func (p *rodPage) Screenshot() ([]byte, error) {
	return p.page.Timeout(p.timeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
