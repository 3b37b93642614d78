// Package stealth makes an automated Chrome tab look like one a person is
// using, so sites serve the agent the same pages they serve everyone else.
package stealth

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// EvasionsJS runs before any page script in every document of the tab.
var EvasionsJS = `(() => {
  Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined });
  if (!window.chrome) {
    window.chrome = { runtime: {} };
  }
  const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
  if (originalQuery) {
    window.navigator.permissions.query = (parameters) =>
      parameters && parameters.name === 'notifications'
        ? Promise.resolve({ state: Notification.permission })
        : originalQuery.call(window.navigator.permissions, parameters);
  }
})();`

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string // Empty keeps the host timezone.
}

// DefaultPersona provides a realistic default browser profile.
var DefaultPersona = Persona{
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
}

// AcceptLanguage renders the persona languages as an Accept-Language value
// with descending quality weights.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Apply constructs the CDP actions that install the persona on the current tab.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	tasks := chromedp.Tasks{}
	if p.UserAgent != "" {
		override := emulation.SetUserAgentOverride(p.UserAgent).WithPlatform(p.Platform)
		if len(p.Languages) > 0 {
			override = override.WithAcceptLanguage(p.AcceptLanguage())
		}
		tasks = append(tasks, override)
	}

	if EvasionsJS != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(EvasionsJS).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}))
	}

	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}

	if len(p.Languages) > 0 {
		tasks = append(tasks,
			emulation.SetLocaleOverride().WithLocale(p.Languages[0]),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage()}),
		)
	}
	return tasks
}
