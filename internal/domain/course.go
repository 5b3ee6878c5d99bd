package domain

import "time"

// Course is the content record a user registers to. Rating state lives on it.
type Course struct {
	ID          string
	Name        string
	Description string
	Image       string
	ImageBanner string
	Inscribed   int64
	Rating      *float64
	RatingSum   float64
	TotalRates  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Unit groups ordered classes inside a course.
type Unit struct {
	ID       string
	CourseID string
	Name     string
	Order    int
	ClassIDs []string
}

// ClassRef identifies a class and the unit that owns it.
type ClassRef struct {
	ID     string
	UnitID string
	Name   string
	Order  int
}

// Reference types a comment may point at.
const (
	ReferenceCourse = "course"
	ReferenceClass  = "class"
)

// Comment is a user-authored note attached to a course or a class.
type Comment struct {
	ID            string
	Author        string
	Title         string
	Detail        string
	Likes         int
	Dislikes      int
	ReferenceID   string
	ReferenceType string
	CreatedAt     time.Time
}
