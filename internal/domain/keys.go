package domain

type CtxKey string

const (
	KeyUserID     CtxKey = "UserID"
	KeyUserEmail  CtxKey = "Email"
	KeyUserRole   CtxKey = "Role"
	KeySessionID  CtxKey = "SessionID"
	KeyGuardState CtxKey = "GuardState"
)
