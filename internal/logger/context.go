package logger

import "context"

type requestKey struct{}

// Request carries the request-scoped fields that the *Ctx functions put in
// front of every record. The control API attaches one per HTTP request, so
// a miss read failing under GET /pages/... is logged with its request id.
type Request struct {
	ID       string
	ClientIP string
	TraceID  string
	SpanID   string
}

// NewContext returns ctx carrying req.
func NewContext(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFrom returns the fields attached by NewContext.
func RequestFrom(ctx context.Context) (Request, bool) {
	if ctx == nil {
		return Request{}, false
	}
	req, ok := ctx.Value(requestKey{}).(Request)
	return req, ok
}

func (r Request) attrs() []any {
	out := make([]any, 0, 8)
	for _, kv := range [...][2]string{
		{KeyTraceID, r.TraceID},
		{KeySpanID, r.SpanID},
		{KeyRequestID, r.ID},
		{KeyClientIP, r.ClientIP},
	} {
		if kv[1] != "" {
			out = append(out, kv[0], kv[1])
		}
	}
	return out
}
