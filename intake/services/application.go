package services

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
	"visaflow/intake/auth"
	"visaflow/intake/schema"
	"visaflow/intake/storage"
	"visaflow/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxFormMemory = 32 << 20

type ApplicationService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *ApplicationService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/submit", s.Submit)
		r.Get("/list", s.List)
		r.Get("/{application_id}", s.Get)
		r.Post("/{application_id}/documents", s.AttachDocument)

		r.Group(func(r chi.Router) {
			r.Use(checkSufficientStorage(s.storage))
			r.Post("/submit-form", s.SubmitForm)
		})
	})

	return r
}

// documentEntry is one attachment in a submission. Entries missing either
// the type or the file reference are skipped without failing the submission,
// matching the behavior applicants rely on when the form renders unused rows.
type documentEntry struct {
	DocType string `json:"doc_type"`
	FileRef string `json:"file_ref"`
}

type submitRequest struct {
	applicantFields
	Documents []documentEntry `json:"documents"`
}

type submitResponse struct {
	ApplicationId uuid.UUID `json:"application_id"`
}

func validateDocumentEntries(entries []documentEntry) map[string]string {
	fieldErrors := make(map[string]string)
	for i, entry := range entries {
		if entry.DocType == "" || entry.FileRef == "" {
			continue
		}
		if err := schema.CheckValidDocType(entry.DocType); err != nil {
			fieldErrors[fmt.Sprintf("documents[%d].doc_type", i)] = err.Error()
		}
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

// createApplication persists the applicant, the application, and one
// document + association per complete entry as a single unit. A failure
// partway rolls back everything.
func (s *ApplicationService) createApplication(userId uuid.UUID, fields applicantFields, entries []documentEntry) (uuid.UUID, error) {
	applicationId := uuid.New()

	err := s.db.Transaction(func(txn *gorm.DB) error {
		applicant := schema.Applicant{
			Id:        uuid.New(),
			FirstName: fields.FirstName,
			LastName:  fields.LastName,
			Email:     fields.Email,
			Phone:     fields.Phone,
		}
		if result := txn.Create(&applicant); result.Error != nil {
			slog.Error("sql error creating applicant", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		application := schema.Application{
			Id:             applicationId,
			SubmissionDate: time.Now().UTC(),
			Status:         schema.InProcessing,
			ApplicantId:    applicant.Id,
			UserId:         userId,
		}
		if result := txn.Create(&application); result.Error != nil {
			slog.Error("sql error creating application", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, entry := range entries {
			if entry.DocType == "" || entry.FileRef == "" {
				continue
			}

			document := schema.Document{Id: uuid.New(), DocType: entry.DocType, FileRef: entry.FileRef}
			if result := txn.Create(&document); result.Error != nil {
				slog.Error("sql error creating document", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			link := schema.DocumentApplication{ApplicationId: applicationId, DocumentId: document.Id}
			if result := txn.Create(&link); result.Error != nil {
				slog.Error("sql error creating document association", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		return uuid.Nil, err
	}

	return applicationId, nil
}

func (s *ApplicationService) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params submitRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	fieldErrors := validateFields(params.applicantFields)
	for field, message := range validateDocumentEntries(params.Documents) {
		if fieldErrors == nil {
			fieldErrors = make(map[string]string)
		}
		fieldErrors[field] = message
	}
	if fieldErrors != nil {
		submissionsRejected.Inc()
		writeFieldErrors(w, fieldErrors)
		return
	}

	applicationId, err := s.createApplication(user.Id, params.applicantFields, params.Documents)
	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting application: %v", err), GetResponseCode(err))
		return
	}

	applicationsSubmitted.Inc()
	slog.Info("application submitted", "application_id", applicationId, "user_id", user.Id)

	utils.WriteJsonResponse(w, submitResponse{ApplicationId: applicationId})
}

// SubmitForm accepts the positional form layout of the legacy intake form:
// applicant fields plus doc_type_0/file_0, doc_type_1/file_1, ... scanned
// from index 0 until the first index where neither part is present. A gap
// ends the scan even if later indices exist.
func (s *ApplicationService) SubmitForm(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		http.Error(w, fmt.Sprintf("error parsing multipart form: %v", err), http.StatusBadRequest)
		return
	}

	fields := applicantFields{
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
		Email:     r.FormValue("email"),
		Phone:     r.FormValue("phone"),
	}

	fieldErrors := validateFields(fields)

	type formDocument struct {
		docType string
		file    *multipart.FileHeader
	}

	form := r.MultipartForm
	documents := make([]formDocument, 0)
	for count := 0; ; count++ {
		typeKey := fmt.Sprintf("doc_type_%d", count)
		fileKey := fmt.Sprintf("file_%d", count)

		docTypes, hasType := form.Value[typeKey]
		files, hasFile := form.File[fileKey]
		if !hasType && !hasFile {
			break
		}
		if !hasType || !hasFile || len(docTypes) == 0 || len(files) == 0 {
			continue
		}

		if err := schema.CheckValidDocType(docTypes[0]); err != nil {
			if fieldErrors == nil {
				fieldErrors = make(map[string]string)
			}
			fieldErrors[typeKey] = err.Error()
			continue
		}

		documents = append(documents, formDocument{docType: docTypes[0], file: files[0]})
	}

	if fieldErrors != nil {
		submissionsRejected.Inc()
		writeFieldErrors(w, fieldErrors)
		return
	}

	entries := make([]documentEntry, 0, len(documents))
	for _, doc := range documents {
		file, err := doc.file.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("error reading uploaded file: %v", err), http.StatusBadRequest)
			return
		}

		fileRef := storage.DocumentPath(uuid.New())
		err = s.storage.Write(fileRef, file)
		file.Close()
		if err != nil {
			slog.Error("error saving uploaded document", "error", err)
			http.Error(w, "error saving uploaded document", http.StatusInternalServerError)
			return
		}
		documentsStored.Inc()

		entries = append(entries, documentEntry{DocType: doc.docType, FileRef: fileRef})
	}

	applicationId, err := s.createApplication(user.Id, fields, entries)
	if err != nil {
		// The files were already streamed to storage, remove them so a
		// rolled back submission leaves no orphaned blobs.
		for _, entry := range entries {
			if err := s.storage.Delete(entry.FileRef); err != nil {
				slog.Error("error removing file for failed submission", "file_ref", entry.FileRef, "error", err)
			}
		}
		http.Error(w, fmt.Sprintf("error submitting application: %v", err), GetResponseCode(err))
		return
	}

	applicationsSubmitted.Inc()
	slog.Info("application submitted via form", "application_id", applicationId, "user_id", user.Id)

	utils.WriteJsonResponse(w, submitResponse{ApplicationId: applicationId})
}

type ApplicantInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type DocumentInfo struct {
	DocumentId uuid.UUID `json:"document_id"`
	DocType    string    `json:"doc_type"`
	FileRef    string    `json:"file_ref"`
}

type PaymentInfo struct {
	PaymentId   uuid.UUID       `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	PaymentDate time.Time       `json:"payment_date"`
}

type ApplicationInfo struct {
	ApplicationId  uuid.UUID      `json:"application_id"`
	Status         string         `json:"status"`
	SubmissionDate time.Time      `json:"submission_date"`
	Applicant      ApplicantInfo  `json:"applicant"`
	Documents      []DocumentInfo `json:"documents"`
	Payment        *PaymentInfo   `json:"payment"`
}

func convertToApplicationInfo(application *schema.Application) ApplicationInfo {
	info := ApplicationInfo{
		ApplicationId:  application.Id,
		Status:         application.Status,
		SubmissionDate: application.SubmissionDate,
		Documents:      make([]DocumentInfo, 0, len(application.Documents)),
	}

	if application.Applicant != nil {
		info.Applicant = ApplicantInfo{
			FirstName: application.Applicant.FirstName,
			LastName:  application.Applicant.LastName,
			Email:     application.Applicant.Email,
			Phone:     application.Applicant.Phone,
		}
	}

	for _, link := range application.Documents {
		if link.Document == nil {
			continue
		}
		info.Documents = append(info.Documents, DocumentInfo{
			DocumentId: link.DocumentId,
			DocType:    link.Document.DocType,
			FileRef:    link.Document.FileRef,
		})
	}

	if application.Payment != nil {
		info.Payment = &PaymentInfo{
			PaymentId:   application.Payment.Id,
			Amount:      application.Payment.Amount,
			Status:      application.Payment.Status,
			PaymentDate: application.Payment.PaymentDate,
		}
	}

	return info
}

// List returns every application owned by the caller with its applicant,
// attached documents, and payment. The associations are preloaded in
// bounded batch queries rather than per row. Results are in submission order
// with id as a tie break so repeated calls agree.
func (s *ApplicationService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var applications []schema.Application
	result := s.db.
		Preload("Applicant").
		Preload("Documents").
		Preload("Documents.Document").
		Preload("Payment").
		Where("user_id = ?", user.Id).
		Order("submission_date").
		Order("id").
		Find(&applications)
	if result.Error != nil {
		slog.Error("sql error listing applications", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing applications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]ApplicationInfo, 0, len(applications))
	for i := range applications {
		infos = append(infos, convertToApplicationInfo(&applications[i]))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *ApplicationService) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	applicationId, err := utils.URLParamUUID(r, "application_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	application, err := schema.GetApplication(applicationId, s.db, true, true, true)
	if err != nil {
		if errors.Is(err, schema.ErrApplicationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting application: %v", err), http.StatusInternalServerError)
		return
	}

	if application.UserId != user.Id && !user.IsAdmin {
		http.Error(w, fmt.Sprintf("user %v does not have access to application %v", user.Id, applicationId), http.StatusForbidden)
		return
	}

	utils.WriteJsonResponse(w, convertToApplicationInfo(&application))
}

type attachDocumentRequest struct {
	DocumentId uuid.UUID `json:"document_id"`
}

// AttachDocument links an existing document to an application. Attaching the
// same document twice is a no-op.
func (s *ApplicationService) AttachDocument(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	applicationId, err := utils.URLParamUUID(r, "application_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params attachDocumentRequest
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

		if application.UserId != user.Id && !user.IsAdmin {
			return CodedError(fmt.Errorf("user %v does not have access to application %v", user.Id, applicationId), http.StatusForbidden)
		}

		if _, err := schema.GetDocument(params.DocumentId, txn); err != nil {
			if errors.Is(err, schema.ErrDocumentNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		link := schema.DocumentApplication{ApplicationId: applicationId, DocumentId: params.DocumentId}
		result := txn.Where(&link).FirstOrCreate(&link)
		if result.Error != nil {
			slog.Error("sql error creating document association", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error attaching document: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
