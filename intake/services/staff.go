package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"visaflow/intake/auth"
	"visaflow/intake/schema"
	"visaflow/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StaffService holds the operator facing endpoints: reviewing applications,
// moving them through the workflow, and managing the operator roster.
type StaffService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *StaffService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/applications", s.ListApplications)
		r.Post("/applications/{application_id}/status", s.UpdateStatus)
		r.Post("/applications/{application_id}/operator", s.AssignOperator)
		r.Delete("/applications/{application_id}", s.DeleteApplication)

		r.Get("/operators", s.ListOperators)
		r.Post("/operators", s.CreateOperator)
	})

	return r
}

func (s *StaffService) ListApplications(w http.ResponseWriter, r *http.Request) {
	var applications []schema.Application
	result := s.db.
		Preload("Applicant").
		Preload("Documents").
		Preload("Documents.Document").
		Preload("Payment").
		Order("submission_date").
		Order("id").
		Find(&applications)
	if result.Error != nil {
		slog.Error("sql error listing all applications", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing applications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]ApplicationInfo, 0, len(applications))
	for i := range applications {
		infos = append(infos, convertToApplicationInfo(&applications[i]))
	}

	utils.WriteJsonResponse(w, infos)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *StaffService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	applicationId, err := utils.URLParamUUID(r, "application_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidApplicationStatus(params.Status); err != nil {
		writeFieldErrors(w, map[string]string{"status": err.Error()})
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		application, err := schema.GetApplication(applicationId, txn, false, false, false)
		if err != nil {
			if errors.Is(err, schema.ErrApplicationNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		application.Status = params.Status

		result := txn.Save(&application)
		if result.Error != nil {
			slog.Error("sql error updating application status", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating application status: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("application status updated", "application_id", applicationId, "status", params.Status)

	utils.WriteSuccess(w)
}

type assignOperatorRequest struct {
	OperatorId uuid.UUID `json:"operator_id"`
}

func (s *StaffService) AssignOperator(w http.ResponseWriter, r *http.Request) {
	applicationId, err := utils.URLParamUUID(r, "application_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params assignOperatorRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		application, err := schema.GetApplication(applicationId, txn, false, false, false)
		if err != nil {
			if errors.Is(err, schema.ErrApplicationNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if _, err := schema.GetOperator(params.OperatorId, txn); err != nil {
			if errors.Is(err, schema.ErrOperatorNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		application.OperatorId = &params.OperatorId

		result := txn.Save(&application)
		if result.Error != nil {
			slog.Error("sql error assigning operator", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning operator: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// DeleteApplication removes an application along with its applicant, payment,
// and document associations. The document rows and their files are kept, they
// may be attached to other applications.
func (s *StaffService) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	applicationId, err := utils.URLParamUUID(r, "application_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		application, err := schema.GetApplication(applicationId, txn, false, false, false)
		if err != nil {
			if errors.Is(err, schema.ErrApplicationNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if result := txn.Where("application_id = ?", applicationId).Delete(&schema.DocumentApplication{}); result.Error != nil {
			slog.Error("sql error deleting document associations", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Where("application_id = ?", applicationId).Delete(&schema.Payment{}); result.Error != nil {
			slog.Error("sql error deleting payment", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Application{Id: applicationId}); result.Error != nil {
			slog.Error("sql error deleting application", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Applicant{Id: application.ApplicantId}); result.Error != nil {
			slog.Error("sql error deleting applicant", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting application: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("application deleted", "application_id", applicationId)

	utils.WriteSuccess(w)
}

type OperatorInfo struct {
	OperatorId  uuid.UUID `json:"operator_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	AccessLevel string    `json:"access_level"`
}

func (s *StaffService) ListOperators(w http.ResponseWriter, r *http.Request) {
	var operators []schema.Operator
	result := s.db.Order("last_name").Find(&operators)
	if result.Error != nil {
		slog.Error("sql error listing operators", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing operators: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]OperatorInfo, 0, len(operators))
	for _, op := range operators {
		infos = append(infos, OperatorInfo{
			OperatorId:  op.Id,
			FirstName:   op.FirstName,
			LastName:    op.LastName,
			Email:       op.Email,
			AccessLevel: op.AccessLevel,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

type createOperatorRequest struct {
	FirstName   string `json:"first_name" validate:"required,titlecase"`
	LastName    string `json:"last_name" validate:"required,titlecase"`
	Email       string `json:"email" validate:"required,email"`
	AccessLevel string `json:"access_level" validate:"required"`
}

type createOperatorResponse struct {
	OperatorId uuid.UUID `json:"operator_id"`
}

func (s *StaffService) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var params createOperatorRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if fieldErrors := validateFields(params); fieldErrors != nil {
		writeFieldErrors(w, fieldErrors)
		return
	}

	operator := schema.Operator{
		Id:          uuid.New(),
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		Email:       params.Email,
		AccessLevel: params.AccessLevel,
	}

	if result := s.db.Create(&operator); result.Error != nil {
		slog.Error("sql error creating operator", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating operator: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, createOperatorResponse{OperatorId: operator.Id})
}
