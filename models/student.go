package models

import (
	"sort"
	"time"
)

// Student is the subscription-bearing profile of a user. Enrollments maps an
// enrolled course id to that course's category.
type Student struct {
	ID                int64
	UserID            int64
	Username          string
	Email             string
	Paid              bool
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	Enrollments       map[int64]CourseCategory
}

// IsEnrolled reports whether the student is enrolled in courseID.
func (s *Student) IsEnrolled(courseID int64) bool {
	_, ok := s.Enrollments[courseID]
	return ok
}

// EnrolledCourseIDs returns the enrolled course ids in ascending order.
func (s *Student) EnrolledCourseIDs() []int64 {
	ids := make([]int64, 0, len(s.Enrollments))
	for id := range s.Enrollments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StudentResponse is the structured response for API responses
type StudentResponse struct {
	ID                int64   `json:"id"`
	Username          string  `json:"username"`
	Paid              bool    `json:"paid"`
	SubscriptionStart *string `json:"subscription_start"`
	SubscriptionEnd   *string `json:"subscription_end"`
	EnrolledCourses   []int64 `json:"courses_enlisted"`
}

// ToResponse converts Student to StudentResponse with formatted timestamps
func (s *Student) ToResponse() StudentResponse {
	return StudentResponse{
		ID:                s.ID,
		Username:          s.Username,
		Paid:              s.Paid,
		SubscriptionStart: formatTime(s.SubscriptionStart),
		SubscriptionEnd:   formatTime(s.SubscriptionEnd),
		EnrolledCourses:   s.EnrolledCourseIDs(),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}
