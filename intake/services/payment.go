package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"visaflow/intake/auth"
	"visaflow/intake/schema"
	"visaflow/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *PaymentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/{application_id}", s.Submit)
	})

	return r
}

type paymentRequest struct {
	Amount string `json:"amount"`
}

type paymentResponse struct {
	PaymentId *uuid.UUID `json:"payment_id,omitempty"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
}

var errAlreadyPaid = errors.New("payment has already been made for this application")

func validateAmount(raw string) (decimal.Decimal, map[string]string) {
	if raw == "" {
		return decimal.Decimal{}, map[string]string{"amount": "this field is required"}
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, map[string]string{"amount": "must be a valid decimal amount"}
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, map[string]string{"amount": "must not be negative"}
	}
	if amount.Exponent() < -2 {
		return decimal.Decimal{}, map[string]string{"amount": "must have at most two fraction digits"}
	}

	return amount, nil
}

// Submit records a payment against an application. At most one payment can
// ever exist per application: the existence check and the insert run in one
// transaction, and the unique index on payments.application_id catches the
// race where two submissions pass the check concurrently.
func (s *PaymentService) Submit(w http.ResponseWriter, r *http.Request) {
	applicationId, err := utils.URLParamUUID(r, "application_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params paymentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	amount, fieldErrors := validateAmount(params.Amount)
	if fieldErrors != nil {
		writeFieldErrors(w, fieldErrors)
		return
	}

	payment := schema.Payment{
		Id:            uuid.New(),
		Amount:        amount,
		Status:        schema.PaymentPending,
		PaymentDate:   time.Now().UTC(),
		ApplicationId: applicationId,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkApplicationExists(txn, applicationId); err != nil {
			return err
		}

		var existing schema.Payment
		result := txn.Limit(1).Find(&existing, "application_id = ?", applicationId)
		if result.Error != nil {
			slog.Error("sql error checking for existing payment", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return errAlreadyPaid
		}

		if result := txn.Create(&payment); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				// Lost the race against a concurrent submission.
				return errAlreadyPaid
			}
			slog.Error("sql error creating payment", "application_id", applicationId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, errAlreadyPaid) {
			paymentsRejected.Inc()
			slog.Info("payment rejected", "application_id", applicationId, "reason", "already_paid")
			utils.WriteJsonResponse(w, paymentResponse{Status: "rejected", Reason: "already_paid"})
			return
		}
		http.Error(w, fmt.Sprintf("error submitting payment: %v", err), GetResponseCode(err))
		return
	}

	paymentsAccepted.Inc()
	slog.Info("payment recorded", "payment_id", payment.Id, "application_id", applicationId)

	utils.WriteJsonResponse(w, paymentResponse{PaymentId: &payment.Id, Status: "accepted"})
}
