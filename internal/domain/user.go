package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// UserPlan enumerates billing plans. The plan selects the rate-limit tier.
type UserPlan string

const (
	UserPlanFree UserPlan = "free"
	UserPlanPro  UserPlan = "pro"
)

// User is the slice of the account the orchestrator needs: identity, role,
// plan and the cached credit balance.
type User struct {
	ID        string
	Email     string
	Role      UserRole
	Plan      UserPlan
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tier identifies which rate-limit budget applies to a caller.
type Tier string

const (
	TierFree     Tier = "free"
	TierElevated Tier = "elevated"
)

// TierFor maps a plan and role onto a rate-limit tier.
func TierFor(plan UserPlan, role UserRole) Tier {
	if role == UserRoleAdmin || plan == UserPlanPro {
		return TierElevated
	}
	return TierFree
}

// Caller is the resolved identity of an inbound request.
type Caller struct {
	UserID string
	Role   UserRole
	Plan   UserPlan
}

// IsAdmin reports whether the caller bypasses ownership checks.
func (c Caller) IsAdmin() bool {
	return c.Role == UserRoleAdmin
}
