package authcore

import "context"

type clientMetadataContextKey struct{}

// WithClientMetadata stores client metadata on the context for transports
// that cannot thread it explicitly.
func WithClientMetadata(ctx context.Context, meta *ClientMetadata) context.Context {
	return context.WithValue(ctx, clientMetadataContextKey{}, meta)
}

// ClientMetadataFromContext returns metadata stored by WithClientMetadata,
// or nil.
func ClientMetadataFromContext(ctx context.Context) *ClientMetadata {
	meta, _ := ctx.Value(clientMetadataContextKey{}).(*ClientMetadata)
	return meta
}
