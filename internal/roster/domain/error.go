package domain

import "errors"

var (
	ErrNotFound           = errors.New("admin_user_not_found")
	ErrAlreadyEnrolled    = errors.New("admin_user_exists")
	ErrAlreadyAdmin       = errors.New("already_admin")
	ErrAlreadyTeamMember  = errors.New("already_team_member")
	ErrSelfTarget         = errors.New("self_target_not_allowed")
	ErrInvalidDisplayName = errors.New("invalid_display_name")
	ErrInvalidRole        = errors.New("invalid_role")

	// ErrRoleUnchanged is returned by the repository when a conditional role
	// update matched the row but it already had the requested role.
	ErrRoleUnchanged = errors.New("role_unchanged")
)
