package ceremony

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"passkey-gate/internal/platform/errs"
)

var tracer = otel.Tracer("passkey-gate/ceremony")

func startSpan(ctx context.Context, op string, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ceremony."+op, trace.WithAttributes(
		attribute.String("identity.id", req.Caller.ID),
		attribute.String("ceremony.origin", req.Origin),
	))
}

// endSpan records err on span, with its deny reason when present, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if reason := errs.Reason(err); reason != "" {
			span.SetAttributes(attribute.String("ceremony.reason", reason))
		}
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
