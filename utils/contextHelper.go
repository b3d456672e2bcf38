package utils

import (
	"context"

	"github.com/nlvegan/boekhouden_migration/appctx"
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyBusinessId)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyBusinessId, businessId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, correlationId)
}

func GetInitiatedByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyInitiatedBy)
}

func SetInitiatedByInContext(ctx context.Context, user string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyInitiatedBy, user)
}

func GetOperationTypeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyOperationType)
}

func SetOperationTypeInContext(ctx context.Context, op string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyOperationType, op)
}
