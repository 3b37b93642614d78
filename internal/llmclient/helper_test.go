package llmclient

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Keep-alive connections of the default transport outlive individual tests.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// getValidLLMConfig returns a valid LLMConfig for testing purposes.
func getValidLLMConfig(provider config.LLMProvider, endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Provider:    provider,
		APIKey:      "test-api-key",
		Model:       "test-model",
		Endpoint:    endpoint,
		APITimeout:  5 * time.Second,
		Think:       true,
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        50,
	}
}

// collect returns an onChunk callback that appends to chunks.
func collect(chunks *[]schemas.StreamChunk) func(schemas.StreamChunk) error {
	return func(c schemas.StreamChunk) error {
		*chunks = append(*chunks, c)
		return nil
	}
}

// writeLines writes each line followed by a newline and flushes after every
// line so the client sees a real stream.
func writeLines(w http.ResponseWriter, prefix string, lines ...string) {
	flusher, _ := w.(http.Flusher)
	for _, line := range lines {
		_, _ = w.Write([]byte(prefix + line + "\n"))
		if prefix != "" {
			_, _ = w.Write([]byte("\n"))
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// testMessages is a short conversation with one screenshot.
func testMessages() []schemas.Message {
	return []schemas.Message{
		{Role: schemas.RoleSystem, Content: "You drive a browser."},
		{Role: schemas.RoleUser, Content: "go to example.com"},
		{Role: schemas.RoleAssistant, Content: "<tool_call>{}</tool_call>"},
		{Role: schemas.RoleUser, Content: "Screenshot.", Images: [][]byte{[]byte("jpeg-bytes")}},
	}
}
