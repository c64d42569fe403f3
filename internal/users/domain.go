package users

import "time"

// User is an identity as shown to administrators. The credential hash never leaves
// the repository.
type User struct {
	ID                  int64      `json:"id"`
	LoginName           string     `json:"loginName"`
	RoleID              int64      `json:"roleId"`
	RoleName            string     `json:"roleName"`
	LastAuthenticatedAt *time.Time `json:"lastAuthenticatedAt"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// CreateInput is the payload for creating a user.
type CreateInput struct {
	LoginName string `json:"loginName" validate:"required,loginname"`
	Password  string `json:"password" validate:"required,strongpassword"`
	RoleID    int64  `json:"roleId" validate:"required,gt=0"`
}

// UpdateInput is a partial user edit.
type UpdateInput struct {
	LoginName *string `json:"loginName" validate:"omitempty,loginname"`
	Password  *string `json:"password" validate:"omitempty,strongpassword"`
	RoleID    *int64  `json:"roleId" validate:"omitempty,gt=0"`
}

// NewUser is a validated user ready for insertion.
type NewUser struct {
	LoginName      string
	CredentialHash string
	RoleID         int64
}

// Changes is a validated partial update. Nil fields are left unchanged.
type Changes struct {
	LoginName      *string
	CredentialHash *string
	RoleID         *int64
}
