package models

// User is a cached contact or topic member profile. IsPartial marks a
// locally synthesized stub that has never been confirmed by the server.
type User struct {
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Remark    string `json:"remark,omitempty"`
	Star      bool   `json:"star,omitempty"`
	Blocked   bool   `json:"blocked,omitempty"`
	Gender    string `json:"gender,omitempty"`
	City      string `json:"city,omitempty"`
	Source    string `json:"source,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	CachedAt  int64  `json:"cachedAt,omitempty"`
	IsPartial bool   `json:"isPartial,omitempty"`
}

// SortKey orders users by profile creation time.
func (u *User) SortKey() int64 { return u.CreatedAt }

// DisplayName resolves the name shown for a user, preferring the local
// remark over the profile name.
func (u *User) DisplayName() string {
	if u.Remark != "" {
		return u.Remark
	}
	if u.Name != "" {
		return u.Name
	}
	return u.UserID
}
