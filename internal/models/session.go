package models

import "time"

// Session lifecycle states.
const (
	SessionActive = "activa"
	SessionPaused = "pausada"
	SessionClosed = "cerrada"
)

// ChatSession is a conversation between a student and the bot or an
// assigned tutor.
type ChatSession struct {
	ID        int       `db:"id" json:"id"`
	StudentID int       `db:"student_id" json:"student_id"`
	TutorID   *int      `db:"tutor_id" json:"tutor_id,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsParticipant reports whether userID is the session's student or its
// assigned tutor.
func (s ChatSession) IsParticipant(userID int) bool {
	return userID == s.StudentID || s.IsTutor(userID)
}

// IsTutor reports whether userID is the assigned tutor.
func (s ChatSession) IsTutor(userID int) bool {
	return s.TutorID != nil && *s.TutorID == userID
}

// Participants returns the student and, when assigned, the tutor.
func (s ChatSession) Participants() []int {
	if s.TutorID == nil {
		return []int{s.StudentID}
	}
	return []int{s.StudentID, *s.TutorID}
}

// ValidSessionStatus reports whether status is a known lifecycle state.
func ValidSessionStatus(status string) bool {
	switch status {
	case SessionActive, SessionPaused, SessionClosed:
		return true
	}
	return false
}
