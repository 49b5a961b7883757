//go:build !integration

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRedact(t *testing.T) {
	if got := Redact("short", false); got != "***" {
		t.Fatalf("got %q", got)
	}
	if got := Redact("1344b5d4-0048-11e8-94db-005056a205be", false); got != "1344...be" {
		t.Fatalf("got %q", got)
	}
	if got := Redact("visible-in-dev", true); got != "visible-in-dev" {
		t.Fatalf("got %q", got)
	}
}

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithTraceID(context.Background(), "t-1")
	ctx = WithGateway(ctx, "zibal")
	ctx = WithReference(ctx, "123")

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"t-1"`, `"gateway":"zibal"`, `"reference":"123"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
