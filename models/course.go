package models

import "time"

// CourseCategory decides whether a course requires a paid subscription.
type CourseCategory string

const (
	CategoryFree CourseCategory = "FREE"
	CategoryPaid CourseCategory = "PAID"
)

// Course is read from the content catalog.
type Course struct {
	ID       int64          `json:"id"`
	Title    string         `json:"title"`
	Category CourseCategory `json:"category"`
}

// Lesson carries its owning course, resolved through the curriculum.
type Lesson struct {
	ID             int64          `json:"id"`
	CurriculumID   int64          `json:"curriculum"`
	CourseID       int64          `json:"course_id"`
	CourseCategory CourseCategory `json:"-"`
	Title          string         `json:"title"`
	SequenceNumber int            `json:"sequence_number"`
	Content        string         `json:"content"`
	Duration       string         `json:"duration"`
	CreatedAt      time.Time      `json:"creation_date"`
}
