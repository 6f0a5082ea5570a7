package model

import (
	"fmt"
	"slices"
)

type RoomType string

const (
	Lecture RoomType = "lecture"
	Lab     RoomType = "lab"
)

// Preferences are the soft wishes of a teacher. Zero values mean "no preference".
type Preferences struct {
	NoBackToBack      bool `json:"no_back_to_back"`
	MaxSessionsPerDay int  `json:"max_sessions_per_day" validate:"gte=0"`
}

type Teacher struct {
	Id         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
	// Ordered set of subjects the teacher is qualified for
	Subjects []string `json:"subjects"`
	// Empty availability means available during the whole grid
	Availability []Interval  `json:"availability"`
	Preferences  Preferences `json:"preferences"`
	Version      int         `json:"version,omitempty"`
}

type Room struct {
	Id           string     `json:"id" validate:"required"`
	Name         string     `json:"name" validate:"required"`
	Capacity     int        `json:"capacity" validate:"gt=0"`
	Type         RoomType   `json:"type" validate:"oneof=lecture lab"`
	Availability []Interval `json:"availability"`
	Version      int        `json:"version,omitempty"`
}

type Course struct {
	Id         string   `json:"id" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	Department string   `json:"department"`
	Subject    string   `json:"subject"`
	Teacher    string   `json:"teacher" validate:"required"`
	Class      string   `json:"class" validate:"required"`
	Enrollment int      `json:"enrollment" validate:"gte=0"`
	Sessions   int      `json:"sessions" validate:"gte=1"`
	RoomType   RoomType `json:"room_type" validate:"oneof=lecture lab"`
	// Optional course-level time restriction; empty means unrestricted
	Permitted []Interval `json:"permitted"`
	Version   int        `json:"version,omitempty"`
}

type SessionID string

// Session is one weekly meeting of a course.
type Session struct {
	Id     SessionID
	Course string
	// 1-based position among the sessions of the course
	Number int
}

func NewSessionID(course string, number int) SessionID {
	return SessionID(fmt.Sprintf("%s/%d", course, number))
}

func (teacher Teacher) clone() Teacher {
	teacher.Subjects = slices.Clone(teacher.Subjects)
	teacher.Availability = slices.Clone(teacher.Availability)
	return teacher
}

func (room Room) clone() Room {
	room.Availability = slices.Clone(room.Availability)
	return room
}

func (course Course) clone() Course {
	course.Permitted = slices.Clone(course.Permitted)
	return course
}

// Teaches reports whether the teacher lists the subject among its qualifications.
func (teacher Teacher) Teaches(subject string) bool {
	return slices.Contains(teacher.Subjects, subject)
}

// AvailableAt reports whether the slot lies inside one of the availability intervals.
func availableAt(availability []Interval, slot TimeSlot) bool {
	if len(availability) == 0 {
		return true
	}
	return slices.ContainsFunc(availability, func(iv Interval) bool { return iv.Contains(slot) })
}

func (teacher Teacher) AvailableAt(slot TimeSlot) bool { return availableAt(teacher.Availability, slot) }

func (room Room) AvailableAt(slot TimeSlot) bool { return availableAt(room.Availability, slot) }

func (course Course) PermittedAt(slot TimeSlot) bool { return availableAt(course.Permitted, slot) }
