package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/logger"
)

// Page is a loaded web page.
type Page interface {
	Title() (string, error)
	// Has reports whether a CSS selector matches any element.
	Has(selector string) (bool, error)
	// Screenshot returns a PNG of the viewport.
	Screenshot() ([]byte, error)
	Close() error
}

type Browser interface {
	// Open navigates to url and fails unless the page answers with 200.
	Open(ctx context.Context, url string) (Page, error)
}

const pageLoadAttempts = 3

var quotedText = regexp.MustCompile(`['"]([^'"]+)['"]`)

func (e *Evaluator) openPage(ctx context.Context, url string) (Page, error) {
	log := logger.FromContext(ctx)
	var lastErr error
	for attempt := 1; attempt <= pageLoadAttempts; attempt++ {
		navCtx, cancel := context.WithTimeout(ctx, e.navTimeout)
		page, err := e.browser.Open(navCtx, url)
		cancel()
		if err == nil {
			return page, nil
		}
		lastErr = err
		if attempt == pageLoadAttempts {
			break
		}
		log.Info("page not reachable yet",
			slog.Int("attempt", attempt),
			slog.String("url", url),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}
	return nil, lastErr
}

func (e *Evaluator) checkFunctional(ctx context.Context, resultID uuid.UUID, subm course.Submission, checks []string) []course.CheckResult {
	failAll := func(reason, logs string) []course.CheckResult {
		out := make([]course.CheckResult, 0, len(checks))
		for _, c := range checks {
			out = append(out, outcome(course.CheckFunctional, c, false, reason, logs))
		}
		return out
	}
	if e.browser == nil {
		return failAll("Browser checks skipped", "no browser configured")
	}

	page, err := e.openPage(ctx, subm.PagesURL)
	if err != nil {
		return failAll("Page not accessible", err.Error())
	}
	defer page.Close()

	out := make([]course.CheckResult, 0, len(checks))
	for _, c := range checks {
		out = append(out, pageCheck(page, c))
	}

	if e.shots != nil && len(out) > 0 {
		url, err := e.uploadScreenshot(ctx, page, subm.UUID, resultID)
		if err != nil {
			logger.FromContext(ctx).Warn("screenshot not stored", slog.Any("error", err))
		} else {
			out[0].ArtifactURL = &url
		}
	}
	return out
}

func (e *Evaluator) uploadScreenshot(ctx context.Context, page Page, submID, resultID uuid.UUID) (string, error) {
	png, err := page.Screenshot()
	if err != nil {
		return "", fmt.Errorf("take screenshot: %w", err)
	}
	thumb, mediaType, err := thumbnail(png, thumbnailWidth)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("screenshots/%s/%s.jpg", submID, resultID)
	return e.shots.Upload(ctx, thumb, key, mediaType)
}

// pageCheck maps a free-text task check to a heuristic. Checks that need
// no browser or have no heuristic pass.
func pageCheck(page Page, check string) course.CheckResult {
	lower := strings.ToLower(check)
	res := func(passed bool, reason, logs string) course.CheckResult {
		return outcome(course.CheckFunctional, check, passed, reason, logs)
	}

	switch {
	case strings.Contains(lower, "title"):
		title, err := page.Title()
		if err != nil {
			return res(false, "Error running check", err.Error())
		}
		want := ""
		if m := quotedText.FindStringSubmatch(check); m != nil {
			want = m[1]
		}
		ok := title != "" && strings.Contains(title, want)
		return res(ok, pick(ok, "Title matches", "Title mismatch"), "Title: "+title)

	case strings.Contains(lower, "bootstrap"):
		ok, err := page.Has(`link[href*="bootstrap"]`)
		if err != nil {
			return res(false, "Error running check", err.Error())
		}
		return res(ok, pick(ok, "Bootstrap found", "Bootstrap not found"),
			pick(ok, "Link element exists", "No Bootstrap link"))

	case checkElementID(check) != "":
		id := checkElementID(check)
		ok, err := page.Has("#" + id)
		if err != nil {
			return res(false, "Error running check", err.Error())
		}
		return res(ok, fmt.Sprintf("Element #%s %s", id, pick(ok, "found", "not found")),
			pick(ok, "Element exists", "Element missing"))

	case strings.Contains(lower, "marked") || strings.Contains(lower, "highlight"):
		lib := "highlight"
		if strings.Contains(lower, "marked") {
			lib = "marked"
		}
		ok, err := page.Has(fmt.Sprintf(`script[src*="%s"]`, lib))
		if err != nil {
			return res(false, "Error running check", err.Error())
		}
		return res(ok, fmt.Sprintf("%s.js %s", lib, pick(ok, "found", "not found")),
			pick(ok, "Script loaded", "Script missing"))

	case strings.Contains(lower, "license"):
		return res(true, "Checked separately", "License validation")

	case strings.Contains(lower, "readme"):
		return res(true, "Checked separately", "README validation")

	default:
		return res(true, "Generic check passed", "No specific validation")
	}
}
