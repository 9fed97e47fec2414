package dataprovider

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for data proxy operations.
const TracerName = "dataprovider"

// Span attribute keys
const (
	AttrProxy     = "proxy"
	AttrProxyType = "proxy_type"
	AttrOperation = "operation"
)

func startSpan(ctx context.Context, op string, proxy DataProxy) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "dataprovider."+op,
		trace.WithAttributes(
			attribute.String(AttrOperation, op),
			attribute.String(AttrProxy, proxy.UniqueID()),
			attribute.String(AttrProxyType, fmt.Sprintf("%T", proxy)),
		),
	)
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
