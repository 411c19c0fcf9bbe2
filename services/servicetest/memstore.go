package servicetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "learning-platform/errors"
	"learning-platform/models"
	"learning-platform/services"
)

// MemStore is an in-memory services.Store. A transaction holds the store
// mutex for its whole duration, which stands in for row locks, and a failed
// transaction restores the state it started from.
type MemStore struct {
	mu    sync.Mutex
	clock *Clock

	nextID      int64
	users       map[int64]models.User
	students    map[int64]*studentRow
	instructors map[int64]models.Instructor
	courses     map[int64]models.Course
	lessons     map[int64]models.Lesson
	payments    map[string]models.PaymentRecord

	txs int
}

type studentRow struct {
	ID                int64
	UserID            int64
	Paid              bool
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	Courses           map[int64]bool
}

func NewMemStore(clock *Clock) *MemStore {
	return &MemStore{
		clock:       clock,
		users:       map[int64]models.User{},
		students:    map[int64]*studentRow{},
		instructors: map[int64]models.Instructor{},
		courses:     map[int64]models.Course{},
		lessons:     map[int64]models.Lesson{},
		payments:    map[string]models.PaymentRecord{},
	}
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(services.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++

	snap := s.snapshot()
	if err := fn(&memRepo{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	nextID      int64
	users       map[int64]models.User
	students    map[int64]*studentRow
	instructors map[int64]models.Instructor
	courses     map[int64]models.Course
	lessons     map[int64]models.Lesson
	payments    map[string]models.PaymentRecord
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		nextID:      s.nextID,
		users:       make(map[int64]models.User, len(s.users)),
		students:    make(map[int64]*studentRow, len(s.students)),
		instructors: make(map[int64]models.Instructor, len(s.instructors)),
		courses:     make(map[int64]models.Course, len(s.courses)),
		lessons:     make(map[int64]models.Lesson, len(s.lessons)),
		payments:    make(map[string]models.PaymentRecord, len(s.payments)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.students {
		snap.students[k] = v.clone()
	}
	for k, v := range s.instructors {
		snap.instructors[k] = v
	}
	for k, v := range s.courses {
		snap.courses[k] = v
	}
	for k, v := range s.lessons {
		snap.lessons[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.nextID = snap.nextID
	s.users = snap.users
	s.students = snap.students
	s.instructors = snap.instructors
	s.courses = snap.courses
	s.lessons = snap.lessons
	s.payments = snap.payments
}

func (r *studentRow) clone() *studentRow {
	c := *r
	c.SubscriptionStart = copyTime(r.SubscriptionStart)
	c.SubscriptionEnd = copyTime(r.SubscriptionEnd)
	c.Courses = make(map[int64]bool, len(r.Courses))
	for id := range r.Courses {
		c.Courses[id] = true
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemStore) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// Seeding and inspection helpers. They take the store lock themselves.

// AddStudent creates a student user and returns its principal.
func (s *MemStore) AddStudent(username string) models.StudentPrincipal {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.addUser(username, models.RoleStudent)
	row := &studentRow{ID: s.id(), UserID: user.ID, Courses: map[int64]bool{}}
	s.students[row.ID] = row
	return models.StudentPrincipal{User: user, StudentID: row.ID}
}

// AddInstructor creates an instructor user and returns its principal.
func (s *MemStore) AddInstructor(username string) models.InstructorPrincipal {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.addUser(username, models.RoleInstructor)
	in := models.Instructor{ID: s.id(), UserID: user.ID}
	s.instructors[in.ID] = in
	return models.InstructorPrincipal{User: user, InstructorID: in.ID}
}

func (s *MemStore) addUser(username string, role models.Role) models.User {
	u := models.User{
		ID:        s.id(),
		Email:     strings.ToLower(username) + "@example.com",
		Username:  username,
		Role:      role,
		CreatedAt: s.now(),
	}
	s.users[u.ID] = u
	return u
}

// AddCourse creates a course with one curriculum holding one lesson and
// returns both ids.
func (s *MemStore) AddCourse(title string, category models.CourseCategory) (courseID, lessonID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.Course{ID: s.id(), Title: title, Category: category}
	s.courses[c.ID] = c
	l := models.Lesson{
		ID:             s.id(),
		CurriculumID:   s.id(),
		CourseID:       c.ID,
		CourseCategory: category,
		Title:          title + " lesson 1",
		SequenceNumber: 1,
		CreatedAt:      s.now(),
	}
	s.lessons[l.ID] = l
	return c.ID, l.ID
}

// SetSubscription overwrites a student's subscription fields.
func (s *MemStore) SetSubscription(studentID int64, paid bool, start, end *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.students[studentID]
	row.Paid = paid
	row.SubscriptionStart = copyTime(start)
	row.SubscriptionEnd = copyTime(end)
}

// Enroll adds an enrollment without any checks.
func (s *MemStore) Enroll(studentID, courseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[studentID].Courses[courseID] = true
}

// Student returns a copy of the stored student.
func (s *MemStore) Student(studentID int64) *models.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := (&memRepo{s: s}).student(studentID)
	return st
}

// Payment returns the stored record for paymentID.
func (s *MemStore) Payment(paymentID string) (models.PaymentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	return p, ok
}

// TxCount returns how many transactions have run, committed or not.
func (s *MemStore) TxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

// PaymentCount returns the number of stored payment records.
func (s *MemStore) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

// memRepo runs with MemStore.mu held.
type memRepo struct {
	s *MemStore
}

var _ services.Repository = (*memRepo)(nil)

func notFound(what string) error {
	return apperrors.E(apperrors.NotFound, what+" not found")
}

func (r *memRepo) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return apperrors.E(apperrors.Invalid, "A user with that email or username already exists.")
		}
	}
	user.ID = r.s.id()
	user.CreatedAt = r.s.now()
	r.s.users[user.ID] = *user
	return nil
}

func (r *memRepo) UserExists(_ context.Context, email, username string) (bool, bool, error) {
	var emailTaken, usernameTaken bool
	for _, u := range r.s.users {
		emailTaken = emailTaken || strings.EqualFold(u.Email, email)
		usernameTaken = usernameTaken || u.Username == username
	}
	return emailTaken, usernameTaken, nil
}

func (r *memRepo) GetUserByID(_ context.Context, userID int64) (*models.User, error) {
	u, ok := r.s.users[userID]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (r *memRepo) CreateStudent(_ context.Context, userID int64) (int64, error) {
	row := &studentRow{ID: r.s.id(), UserID: userID, Courses: map[int64]bool{}}
	r.s.students[row.ID] = row
	return row.ID, nil
}

func (r *memRepo) CreateInstructor(_ context.Context, userID int64) (int64, error) {
	in := models.Instructor{ID: r.s.id(), UserID: userID}
	r.s.instructors[in.ID] = in
	return in.ID, nil
}

func (r *memRepo) GetInstructorByUserID(_ context.Context, userID int64) (*models.Instructor, error) {
	for _, in := range r.s.instructors {
		if in.UserID == userID {
			in := in
			return &in, nil
		}
	}
	return nil, notFound("instructor")
}

func (r *memRepo) student(studentID int64) (*models.Student, error) {
	row, ok := r.s.students[studentID]
	if !ok {
		return nil, notFound("student")
	}
	user := r.s.users[row.UserID]
	st := &models.Student{
		ID:                row.ID,
		UserID:            row.UserID,
		Username:          user.Username,
		Email:             user.Email,
		Paid:              row.Paid,
		SubscriptionStart: copyTime(row.SubscriptionStart),
		SubscriptionEnd:   copyTime(row.SubscriptionEnd),
		Enrollments:       make(map[int64]models.CourseCategory, len(row.Courses)),
	}
	for id := range row.Courses {
		st.Enrollments[id] = r.s.courses[id].Category
	}
	return st, nil
}

func (r *memRepo) GetStudentByUserID(_ context.Context, userID int64) (*models.Student, error) {
	for _, row := range r.s.students {
		if row.UserID == userID {
			return r.student(row.ID)
		}
	}
	return nil, notFound("student")
}

func (r *memRepo) GetStudentForUpdate(_ context.Context, studentID int64) (*models.Student, error) {
	return r.student(studentID)
}

func (r *memRepo) GetStudentIDByUsername(_ context.Context, username string) (int64, error) {
	for _, row := range r.s.students {
		if r.s.users[row.UserID].Username == username {
			return row.ID, nil
		}
	}
	return 0, notFound("student")
}

func (r *memRepo) SaveSubscription(_ context.Context, st *models.Student) error {
	row, ok := r.s.students[st.ID]
	if !ok {
		return notFound("student")
	}
	row.Paid = st.Paid
	row.SubscriptionStart = copyTime(st.SubscriptionStart)
	row.SubscriptionEnd = copyTime(st.SubscriptionEnd)
	return nil
}

func (r *memRepo) AddEnrollment(_ context.Context, studentID, courseID int64) error {
	row, ok := r.s.students[studentID]
	if !ok {
		return notFound("student")
	}
	if _, ok := r.s.courses[courseID]; !ok {
		return fmt.Errorf("foreign key violation: course %d", courseID)
	}
	row.Courses[courseID] = true
	return nil
}

func (r *memRepo) RemoveEnrollments(_ context.Context, studentID int64, courseIDs []int64) error {
	row, ok := r.s.students[studentID]
	if !ok {
		return notFound("student")
	}
	for _, id := range courseIDs {
		delete(row.Courses, id)
	}
	return nil
}

func (r *memRepo) ListExpiredStudentIDs(_ context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	for _, row := range r.s.students {
		active := row.Paid && row.SubscriptionEnd != nil && row.SubscriptionEnd.After(now)
		if active {
			continue
		}
		for id := range row.Courses {
			if r.s.courses[id].Category == models.CategoryPaid {
				ids = append(ids, row.ID)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *memRepo) GetCourse(_ context.Context, courseID int64) (*models.Course, error) {
	c, ok := r.s.courses[courseID]
	if !ok {
		return nil, notFound("course")
	}
	return &c, nil
}

func (r *memRepo) GetLesson(_ context.Context, lessonID int64) (*models.Lesson, error) {
	l, ok := r.s.lessons[lessonID]
	if !ok {
		return nil, notFound("lesson")
	}
	return &l, nil
}

func (r *memRepo) ListLessonsByCourses(_ context.Context, courseIDs []int64) ([]models.Lesson, error) {
	wanted := make(map[int64]bool, len(courseIDs))
	for _, id := range courseIDs {
		wanted[id] = true
	}
	var out []models.Lesson
	for _, l := range r.s.lessons {
		if wanted[l.CourseID] {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CourseID != out[j].CourseID {
			return out[i].CourseID < out[j].CourseID
		}
		if out[i].SequenceNumber != out[j].SequenceNumber {
			return out[i].SequenceNumber < out[j].SequenceNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memRepo) InsertPayment(_ context.Context, p *models.PaymentRecord) (bool, error) {
	if _, exists := r.s.payments[p.PaymentID]; exists {
		return false, nil
	}
	if _, ok := r.s.students[p.StudentID]; !ok {
		return false, fmt.Errorf("foreign key violation: student %d", p.StudentID)
	}
	now := r.s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.payments[p.PaymentID] = *p
	return true, nil
}

func (r *memRepo) GetPaymentForUpdate(_ context.Context, paymentID string) (*models.PaymentRecord, error) {
	p, ok := r.s.payments[paymentID]
	if !ok {
		return nil, notFound("payment")
	}
	return &p, nil
}

func (r *memRepo) UpdatePaymentStatus(_ context.Context, p *models.PaymentRecord) error {
	stored, ok := r.s.payments[p.PaymentID]
	if !ok {
		return notFound("payment")
	}
	stored.Status = p.Status
	stored.PayAmount = p.PayAmount
	stored.PayCurrency = p.PayCurrency
	stored.UpdatedAt = r.s.now()
	p.UpdatedAt = stored.UpdatedAt
	r.s.payments[p.PaymentID] = stored
	return nil
}

func (r *memRepo) ListPaymentsByStudent(_ context.Context, studentID int64) ([]models.PaymentRecord, error) {
	out := []models.PaymentRecord{}
	for _, p := range r.s.payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].PaymentID > out[j].PaymentID
	})
	return out, nil
}
