package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyBusinessId    = ContextKey("BusinessId")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeyInitiatedBy identifies the user who started a migration run.
	// It travels with the request instead of living in ambient state so that
	// audit records stay correct when runs for different businesses overlap.
	ContextKeyInitiatedBy = ContextKey("InitiatedBy")

	// ContextKeyOperationType names the migration operation currently in
	// flight ("payment_processing", "party_enrichment", ...).
	ContextKeyOperationType = ContextKey("OperationType")

	// ContextKeySkipTenantScope bypasses the tenant guard for internal
	// maintenance queries that legitimately cross businesses.
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
