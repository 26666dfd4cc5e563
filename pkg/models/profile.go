package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttendeeProfile is the read model the scorer uses. It is seeded by the
// operator CLI; profile editing lives outside this service.
type AttendeeProfile struct {
	UserID      string                      `json:"userId" yaml:"userId" gorm:"type:varchar(36);primaryKey"`
	DisplayName string                      `json:"displayName" yaml:"displayName" gorm:"type:varchar(255)"`
	Headline    string                      `json:"headline" yaml:"headline" gorm:"type:varchar(255)"`
	Industry    string                      `json:"industry" yaml:"industry" gorm:"type:varchar(100);index"`
	Goals       datatypes.JSONSlice[string] `json:"goals" yaml:"goals"`
	Interests   datatypes.JSONSlice[string] `json:"interests" yaml:"interests"`
	City        string                      `json:"city" yaml:"city" gorm:"type:varchar(100)"`
	Latitude    *float64                    `json:"latitude" yaml:"latitude"`
	Longitude   *float64                    `json:"longitude" yaml:"longitude"`
	UpdatedAt   time.Time                   `json:"updatedAt" yaml:"-"`
}

// TableName specifies the table name for GORM
func (AttendeeProfile) TableName() string {
	return "attendee_profiles"
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p *AttendeeProfile) HasCoordinates() bool {
	return p != nil && p.Latitude != nil && p.Longitude != nil
}
