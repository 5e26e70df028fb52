package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Application statuses. The string values match the rows written by the
// original intake system so that existing databases migrate cleanly.
const (
	InProcessing = "In processing"
	Approved     = "Approved"
	Rejected     = "Rejected"
)

// Payment statuses. Transitions to Completed/Failed are owned by the
// external payment gateway, nothing in this service writes them.
const (
	PaymentPending   = "Pending"
	PaymentCompleted = "Completed"
	PaymentFailed    = "Failed"
)

// Document types accepted for an application.
const (
	DocPassport        = "Passport"
	DocPhoto           = "Photo"
	DocTravelInsurance = "TravelInsurance"
)

func CheckValidApplicationStatus(status string) error {
	switch status {
	case InProcessing, Approved, Rejected:
		return nil
	}
	return fmt.Errorf("invalid application status '%v'", status)
}

func CheckValidDocType(docType string) error {
	switch docType {
	case DocPassport, DocPhoto, DocTravelInsurance:
		return nil
	}
	return fmt.Errorf("invalid document type '%v'", docType)
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`

	Applications []Application
}

type Applicant struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FirstName string `gorm:"size:50;not null"`
	LastName  string `gorm:"size:50;not null"`
	Email     string `gorm:"size:100;not null"`
	Phone     string `gorm:"size:20;not null"`
}

type Application struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SubmissionDate time.Time `gorm:"not null"`
	Status         string    `gorm:"size:20;not null"`

	ApplicantId uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	Applicant   *Applicant `gorm:"constraint:OnDelete:CASCADE"`

	UserId uuid.UUID `gorm:"type:uuid;not null"`
	User   *User

	OperatorId *uuid.UUID `gorm:"type:uuid"`
	Operator   *Operator  `gorm:"constraint:OnDelete:SET NULL"`

	Payment   *Payment              `gorm:"constraint:OnDelete:CASCADE"`
	Documents []DocumentApplication `gorm:"constraint:OnDelete:CASCADE"`
}

// Document rows are created independently of applications and survive the
// deletion of any application they are attached to.
type Document struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DocType string `gorm:"size:100;not null"`
	FileRef string `gorm:"size:500;not null"`
}

// DocumentApplication links an application to a document (the association
// entity of the final schema revision).
type DocumentApplication struct {
	ApplicationId uuid.UUID `gorm:"type:uuid;primaryKey"`
	DocumentId    uuid.UUID `gorm:"type:uuid;primaryKey"`

	Application *Application `gorm:"constraint:OnDelete:CASCADE"`
	Document    *Document
}

type Payment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status      string          `gorm:"size:50;not null"`
	PaymentDate time.Time       `gorm:"not null"`

	// The unique index is what makes the one-payment-per-application
	// guarantee hold under concurrent submissions.
	ApplicationId uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
}

type Operator struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FirstName   string `gorm:"size:50;not null"`
	LastName    string `gorm:"size:50;not null"`
	Email       string `gorm:"size:100;not null"`
	AccessLevel string `gorm:"size:50;not null"`
}

type Administrator struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FirstName   string `gorm:"size:50;not null"`
	LastName    string `gorm:"size:50;not null"`
	Email       string `gorm:"size:100;not null"`
	AccessLevel string `gorm:"size:50;not null"`
}
