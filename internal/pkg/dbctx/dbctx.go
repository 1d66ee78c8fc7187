package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// New wraps a plain context with no transaction.
func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}
