package audit

import "context"

// Origin describes where a call came from. The HTTP middleware attaches it to the request context.
type Origin struct {
	IP string
	// Client is a short browser/OS summary derived from the User-Agent header.
	Client    string
	UserAgent string
}

type originKey struct{}

// WithOrigin returns ctx carrying o.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the origin attached to ctx, or the zero Origin.
func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}

// OriginIP is an IPExtractor reading the origin attached by WithOrigin.
func OriginIP(ctx context.Context) string {
	return OriginFrom(ctx).IP
}
