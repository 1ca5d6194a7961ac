package models

import (
	"time"
)

// SwapStatus is the lifecycle state of a swap request.
type SwapStatus string

const (
	// SwapStatusOpen is a freshly posted request waiting for a counterparty.
	SwapStatusOpen SwapStatus = "open"
	// SwapStatusMatched is a request whose owner, or whose counterparty, confirmed a match.
	SwapStatusMatched SwapStatus = "matched"
	// SwapStatusCompleted is terminal.
	SwapStatusCompleted SwapStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s SwapStatus) Valid() bool {
	switch s {
	case SwapStatusOpen, SwapStatusMatched, SwapStatusCompleted:
		return true
	}
	return false
}

// ContactRevealed reports whether the counterparty contact may be read in this status.
func (s SwapStatus) ContactRevealed() bool {
	return s == SwapStatusMatched || s == SwapStatusCompleted
}

// NotAvailable is the placeholder returned for contact fields nobody filled in.
const NotAvailable = "N/A"

// SwapRequest is a student's offer to trade the faculty/slot they hold in a
// course for the one they want.
//
// Two independent contact sets live on each record: the Student* contact
// fields are written by this record's owner when they confirm, the
// MatchedStudent* fields are mirrored here from the counterparty's confirm.
type SwapRequest struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	StudentID      uint       `gorm:"not null;index:idx_swap_requests_student" json:"studentId"`
	CourseCode     string     `gorm:"type:varchar(50);not null;index:idx_swap_requests_match,priority:1" json:"courseCode"`
	CurrentFaculty string     `gorm:"type:varchar(120);not null;index:idx_swap_requests_match,priority:3" json:"currentFaculty"`
	CurrentSlot    string     `gorm:"type:varchar(50);not null;index:idx_swap_requests_match,priority:4" json:"currentSlot"`
	DesiredFaculty string     `gorm:"type:varchar(120);not null" json:"desiredFaculty"`
	DesiredSlot    string     `gorm:"type:varchar(50);not null" json:"desiredSlot"`
	Status         SwapStatus `gorm:"type:varchar(20);not null;default:'open';index:idx_swap_requests_match,priority:2" json:"status"`
	MatchedWith    *uint      `gorm:"index" json:"matchedWith"`
	Notes          string     `gorm:"type:text;not null;default:''" json:"notes"`

	StudentName        string `gorm:"type:varchar(120)" json:"studentName"`
	StudentEmail       string `gorm:"type:varchar(255)" json:"studentEmail"`
	StudentPhone       string `gorm:"type:varchar(20)" json:"studentPhone,omitempty"`
	StudentContactName string `gorm:"type:varchar(120)" json:"studentContactName,omitempty"`
	BargainingNotes    string `gorm:"type:text;not null;default:''" json:"bargainingNotes"`

	MatchedStudentPhone string `gorm:"type:varchar(20)" json:"matchedStudentPhone,omitempty"`
	MatchedStudentName  string `gorm:"type:varchar(120)" json:"matchedStudentName,omitempty"`
	MatchedStudentEmail string `gorm:"type:varchar(255)" json:"matchedStudentEmail,omitempty"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relationships
	Student        *User        `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"student,omitempty"`
	MatchedRequest *SwapRequest `gorm:"foreignKey:MatchedWith;constraint:OnDelete:SET NULL" json:"matchedRequest,omitempty"`
}

// TableName specifies the table name for GORM
func (SwapRequest) TableName() string {
	return "swap_requests"
}

// OwnedBy reports whether studentID posted this request.
func (r *SwapRequest) OwnedBy(studentID uint) bool {
	return r != nil && r.StudentID == studentID
}

// Public returns a copy of r with both contact sets cleared, for listings
// that anyone can read.
func (r SwapRequest) Public() SwapRequest {
	r.StudentPhone = ""
	r.StudentContactName = ""
	r.MatchedStudentPhone = ""
	r.MatchedStudentName = ""
	r.MatchedStudentEmail = ""
	r.MatchedRequest = nil
	return r
}

// PublicList applies Public to every element.
func PublicList(requests []SwapRequest) []SwapRequest {
	out := make([]SwapRequest, len(requests))
	for i := range requests {
		out[i] = requests[i].Public()
	}
	return out
}

// IsReciprocalOf reports whether r and other state exactly inverse
// held/desired pairs for the same course. Status is not considered.
func (r *SwapRequest) IsReciprocalOf(other *SwapRequest) bool {
	if r == nil || other == nil || r.ID == other.ID {
		return false
	}
	return r.CourseCode == other.CourseCode &&
		r.CurrentFaculty == other.DesiredFaculty &&
		r.CurrentSlot == other.DesiredSlot &&
		r.DesiredFaculty == other.CurrentFaculty &&
		r.DesiredSlot == other.CurrentSlot
}

// Contact is the counterparty information disclosed after confirmation.
type Contact struct {
	Name  string `json:"studentName"`
	Phone string `json:"studentPhone"`
	Email string `json:"studentEmail"`
	Notes string `json:"bargainingNotes"`
}

// ResolveCounterpartyContact picks the contact to show the owner of own,
// whose counterparty request is linked. Fields mirrored onto own by the
// counterparty's confirm win; when that write has not landed (or own's
// owner was the one who confirmed) the linked record's own contact set and
// then its identity snapshot are used. Anything still empty reads "N/A".
func ResolveCounterpartyContact(own, linked *SwapRequest) Contact {
	return Contact{
		Name:  firstNonEmpty(own.MatchedStudentName, linked.StudentContactName, linked.StudentName, NotAvailable),
		Phone: firstNonEmpty(own.MatchedStudentPhone, linked.StudentPhone, NotAvailable),
		Email: firstNonEmpty(own.MatchedStudentEmail, linked.StudentEmail, NotAvailable),
		Notes: linked.BargainingNotes,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
