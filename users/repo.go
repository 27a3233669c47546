package users

// UserRepo stores portal accounts. Implementations return copies, callers
// persist changes with Upsert.
type UserRepo interface {
	Upsert(user *User) error
	Delete(email string) error
	GetByEmail(email string) (*User, error)
	GetByID(ID string) (*User, error)
	SetBlocked(email string, blocked bool) error
}
