// internal/browser/url_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "https://example.com"},
		{"  example.com/path?q=1  ", "https://example.com/path?q=1"},
		{"http://example.com", "http://example.com"},
		{"HTTPS://Example.com", "HTTPS://Example.com"},
		{"//cdn.example.com/x", "https://cdn.example.com/x"},
		{"localhost:8080", "https://localhost:8080"},
		{"example.com:8443/login", "https://example.com:8443/login"},
		{"ftp://files.example.com", "ftp://files.example.com"},
		{"mailto:a@b.c", "mailto:a@b.c"},
		{"chrome://version", "chrome://version"},
		{"data:text/html,<p>hi</p>", "data:text/html,<p>hi</p>"},
		{"about:blank", "about:blank"},
		{"file:///tmp/index.html", "file:///tmp/index.html"},
		{"bücher.de", "https://xn--bcher-kva.de"},
		{"https://münchen.de:8443/karte", "https://xn--mnchen-3ya.de:8443/karte"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}
