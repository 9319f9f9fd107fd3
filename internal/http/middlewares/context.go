package middlewares

import (
	"context"

	"github.com/mindusforge/mindus-web/internal/session"
)

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxSessionKey   ctxKey = "session"
)

// setRequestID inyecta el request ID en el contexto (interno)
func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// withSession inyecta la sesión cargada por el gate (interno)
func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey, s)
}

// GetSession obtiene la sesión del contexto. Retorna nil si el gate no corrió.
func GetSession(ctx context.Context) *session.Session {
	if v := ctx.Value(ctxSessionKey); v != nil {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return nil
}
