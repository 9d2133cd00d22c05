package gateway

import "context"

type contextKey string

// clientIDKey carries the websocket client ID so method handlers can
// stream frames back to the caller.
const clientIDKey contextKey = "gateway.client_id"

func withClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// clientIDFromContext returns the calling client's ID, or "" for HTTP
// callers that have no websocket connection to stream to.
func clientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}
