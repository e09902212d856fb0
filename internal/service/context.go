package service

import "context"

type ctxKey int

const (
	operatorKey ctxKey = iota
	traceKey
)

const RoleAdmin = "admin"

// OperatorInfo is the authenticated caller of an admin route.
type OperatorInfo struct {
	UserID string
	Name   string
	Role   string
}

func (o *OperatorInfo) IsAdmin() bool {
	return o != nil && o.Role == RoleAdmin
}

func WithOperator(ctx context.Context, op *OperatorInfo) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

func GetOperatorInfo(ctx context.Context) *OperatorInfo {
	op, _ := ctx.Value(operatorKey).(*OperatorInfo)
	return op
}

// GetOperator returns the operator name, or "system" for background work
// such as mirrors and derived topics.
func GetOperator(ctx context.Context) string {
	if op := GetOperatorInfo(ctx); op != nil {
		return op.Name
	}
	return "system"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey, id)
}

// TraceID is empty outside an HTTP request.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey).(string)
	return id
}
