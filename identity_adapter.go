package auth

// Identity converts the record, never exposing the hash
func (u *User) Identity(roles []string) *UserIdentity {
	if u == nil {
		return nil
	}
	return &UserIdentity{
		ID:          u.ID.String(),
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Username:    u.Username,
		Phone:       u.Phone,
		Roles:       append([]string(nil), roles...),
	}
}
