package core

import (
	"bytes"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLogfPrefixesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set("request_id", "req-123")
	Logf(c, "fetch failed: %v", "boom")

	if !strings.Contains(buf.String(), "[req-123] fetch failed: boom") {
		t.Fatalf("log line %q", buf.String())
	}
}

func TestLogfWithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	Logf(c, "plain line")

	out := buf.String()
	if !strings.Contains(out, "plain line") || strings.Contains(out, "[") {
		t.Fatalf("log line %q", out)
	}
}
