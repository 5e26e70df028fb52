package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrOperatorNotFound    = errors.New("operator not found")
	ErrDbAccessFailed      = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetApplication(applicationId uuid.UUID, db *gorm.DB, loadApplicant, loadDocuments, loadPayment bool) (Application, error) {
	var application Application

	var result *gorm.DB = db
	if loadApplicant {
		result = result.Preload("Applicant")
	}
	if loadDocuments {
		result = result.Preload("Documents").Preload("Documents.Document")
	}
	if loadPayment {
		result = result.Preload("Payment")
	}
	result = result.First(&application, "id = ?", applicationId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return application, ErrApplicationNotFound
		}
		slog.Error("sql error in get application", "application_id", applicationId, "error", result.Error)
		return application, ErrDbAccessFailed
	}

	return application, nil
}

func GetDocument(documentId uuid.UUID, db *gorm.DB) (Document, error) {
	var document Document

	result := db.First(&document, "id = ?", documentId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return document, ErrDocumentNotFound
		}
		slog.Error("sql error in get document", "document_id", documentId, "error", result.Error)
		return document, ErrDbAccessFailed
	}

	return document, nil
}

func GetOperator(operatorId uuid.UUID, db *gorm.DB) (Operator, error) {
	var operator Operator

	result := db.First(&operator, "id = ?", operatorId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return operator, ErrOperatorNotFound
		}
		slog.Error("sql error in get operator", "operator_id", operatorId, "error", result.Error)
		return operator, ErrDbAccessFailed
	}

	return operator, nil
}
