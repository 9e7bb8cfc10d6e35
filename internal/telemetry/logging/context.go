package logging

import "context"

type contextKey int

const (
	componentKey contextKey = iota
	tickIDKey
	ipKey
)

// WithComponent attaches the originating component name (e.g. "lapi",
// "siem", "cluster", "local") to ctx for InfoContext/WarnContext/ErrorContext.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithTickID attaches the current tick's identifier to ctx.
func WithTickID(ctx context.Context, tickID int64) context.Context {
	return context.WithValue(ctx, tickIDKey, tickID)
}

// WithIP attaches the IP under consideration to ctx.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

// GetComponent returns the component name stored on ctx, or "" if absent.
func GetComponent(ctx context.Context) string {
	v, _ := ctx.Value(componentKey).(string)
	return v
}

// GetTickID returns the tick ID stored on ctx, or 0 if absent.
func GetTickID(ctx context.Context) int64 {
	v, _ := ctx.Value(tickIDKey).(int64)
	return v
}

// GetIP returns the IP stored on ctx, or "" if absent.
func GetIP(ctx context.Context) string {
	v, _ := ctx.Value(ipKey).(string)
	return v
}

// contextFields extracts whichever of component/tick_id/ip are present on
// ctx as an slog-style key/value list.
func contextFields(ctx context.Context) []any {
	var fields []any
	if v, ok := ctx.Value(componentKey).(string); ok {
		fields = append(fields, "component", v)
	}
	if v, ok := ctx.Value(tickIDKey).(int64); ok {
		fields = append(fields, "tick_id", v)
	}
	if v, ok := ctx.Value(ipKey).(string); ok {
		fields = append(fields, "ip", v)
	}
	return fields
}
