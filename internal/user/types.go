// internal/user/types.go
package user

// User is the locally cached copy of a login's user document plus the
// repository versions it has been synchronized against.
type User struct {
	Login   string `json:"login"`
	FileID  string `json:"file_id,omitempty"`
	Content string `json:"content"`

	// LocalVersion is the commit whose content is stored locally.
	LocalVersion string `json:"local_version"`
	// RemoteVersion is the latest commit observed on the remote.
	RemoteVersion string `json:"remote_version"`
}

func (u *User) GetID() string {
	return u.Login
}

// Stale reports whether the remote has commits not yet installed locally.
func (u *User) Stale() bool {
	return u.LocalVersion != u.RemoteVersion
}
