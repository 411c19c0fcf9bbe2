package models

// Principal is the caller of a request, resolved once by the auth middleware.
// It is either a StudentPrincipal or an InstructorPrincipal.
type Principal interface {
	UserID() int64
	Role() Role
	isPrincipal()
}

// StudentPrincipal is a user with a student profile.
type StudentPrincipal struct {
	User      User
	StudentID int64
}

func (p StudentPrincipal) UserID() int64 { return p.User.ID }
func (p StudentPrincipal) Role() Role    { return RoleStudent }
func (StudentPrincipal) isPrincipal()    {}

// InstructorPrincipal is a user with an instructor profile.
type InstructorPrincipal struct {
	User         User
	InstructorID int64
}

func (p InstructorPrincipal) UserID() int64 { return p.User.ID }
func (p InstructorPrincipal) Role() Role    { return RoleInstructor }
func (InstructorPrincipal) isPrincipal()    {}

// AsStudent returns the student view of p, if any.
func AsStudent(p Principal) (StudentPrincipal, bool) {
	sp, ok := p.(StudentPrincipal)
	return sp, ok
}
