package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"visaflow/intake/auth"
	"visaflow/intake/schema"
	"visaflow/intake/storage"
	"visaflow/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/{document_id}", s.Download)

		r.Group(func(r chi.Router) {
			r.Use(checkSufficientStorage(s.storage))
			r.Post("/upload", s.Upload)
		})
	})

	return r
}

func getMultipartBoundary(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return "", CodedError(fmt.Errorf("missing 'Content-Type' header"), http.StatusBadRequest)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", CodedError(fmt.Errorf("error parsing media type in request: %w", err), http.StatusBadRequest)
	}
	if mediaType != "multipart/form-data" {
		return "", CodedError(fmt.Errorf("expected media type to be 'multipart/form-data'"), http.StatusBadRequest)
	}

	boundary, ok := params["boundary"]
	if !ok {
		return "", CodedError(fmt.Errorf("missing 'boundary' parameter in 'Content-Type' header"), http.StatusBadRequest)
	}

	return boundary, nil
}

type uploadResponse struct {
	DocumentId uuid.UUID `json:"document_id"`
	FileRef    string    `json:"file_ref"`
}

// Upload streams a single file into the blob store and records its metadata.
// The request carries a 'doc_type' field followed by a 'file' part.
func (s *DocumentService) Upload(w http.ResponseWriter, r *http.Request) {
	boundary, err := getMultipartBoundary(r)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	documentId := uuid.New()
	fileRef := storage.DocumentPath(documentId)

	var docType string
	fileSeen := false

	reader := multipart.NewReader(r.Body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("error parsing multipart request: %v", err), http.StatusBadRequest)
			return
		}
		defer part.Close()

		switch part.FormName() {
		case "doc_type":
			value, err := io.ReadAll(part)
			if err != nil {
				http.Error(w, fmt.Sprintf("error reading doc_type field: %v", err), http.StatusBadRequest)
				return
			}
			docType = string(value)
		case "file":
			if part.FileName() == "" {
				http.Error(w, "invalid filename detected in upload: filename cannot be empty", http.StatusUnprocessableEntity)
				return
			}
			if err := s.storage.Write(fileRef, part); err != nil {
				slog.Error("error saving uploaded document", "error", err)
				http.Error(w, "error saving uploaded document", http.StatusInternalServerError)
				return
			}
			fileSeen = true
		}
	}

	fieldErrors := make(map[string]string)
	if err := schema.CheckValidDocType(docType); err != nil {
		fieldErrors["doc_type"] = err.Error()
	}
	if !fileSeen {
		fieldErrors["file"] = "this field is required"
	}
	if len(fieldErrors) > 0 {
		if fileSeen {
			if err := s.storage.Delete(fileRef); err != nil {
				slog.Error("error removing rejected upload", "file_ref", fileRef, "error", err)
			}
		}
		writeFieldErrors(w, fieldErrors)
		return
	}

	document := schema.Document{Id: documentId, DocType: docType, FileRef: fileRef}
	if result := s.db.Create(&document); result.Error != nil {
		slog.Error("sql error creating document", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating document: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	documentsStored.Inc()
	slog.Info("document uploaded", "document_id", documentId, "doc_type", docType)

	utils.WriteJsonResponse(w, uploadResponse{DocumentId: documentId, FileRef: fileRef})
}

// checkDocumentAccess mirrors the owner-or-admin rule on applications: once a
// document is attached, only admins and owners of an application it is
// attached to may fetch it. An unattached document is not tied to any
// applicant yet, so any signed in user can fetch it.
func (s *DocumentService) checkDocumentAccess(user schema.User, documentId uuid.UUID) error {
	if user.IsAdmin {
		return nil
	}

	var attached int64
	result := s.db.Model(&schema.DocumentApplication{}).
		Where("document_id = ?", documentId).
		Count(&attached)
	if result.Error != nil {
		slog.Error("sql error counting document associations", "document_id", documentId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if attached == 0 {
		return nil
	}

	var owned int64
	result = s.db.Model(&schema.DocumentApplication{}).
		Joins("JOIN applications ON applications.id = document_applications.application_id").
		Where("document_applications.document_id = ? AND applications.user_id = ?", documentId, user.Id).
		Count(&owned)
	if result.Error != nil {
		slog.Error("sql error checking document ownership", "document_id", documentId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if owned == 0 {
		return CodedError(fmt.Errorf("user %v does not have access to document %v", user.Id, documentId), http.StatusForbidden)
	}

	return nil
}

func (s *DocumentService) Download(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.checkDocumentAccess(user, documentId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	document, err := schema.GetDocument(documentId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrDocumentNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting document: %v", err), http.StatusInternalServerError)
		return
	}

	file, err := s.storage.Read(document.FileRef)
	if err != nil {
		slog.Error("error reading document from storage", "document_id", documentId, "error", err)
		http.Error(w, "error reading document file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, file); err != nil {
		slog.Error("error streaming document file", "document_id", documentId, "error", err)
	}
}
