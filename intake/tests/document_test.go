package tests

import (
	"testing"
	"visaflow/intake/schema"
	"visaflow/intake/storage"

	"github.com/google/uuid"
)

func TestUploadAndDownloadDocument(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("passport scan bytes")

	documentId, err := user.uploadDocument(schema.DocPassport, "passport.pdf", content)
	if err != nil {
		t.Fatal(err)
	}

	downloaded, err := user.downloadDocument(documentId)
	if err != nil {
		t.Fatal(err)
	}
	if string(downloaded) != string(content) {
		t.Fatalf("downloaded content does not match upload: '%v'", string(downloaded))
	}

	id, err := uuid.Parse(documentId)
	if err != nil {
		t.Fatal(err)
	}
	exists, err := env.storage.Exists(storage.DocumentPath(id))
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("uploaded file missing from storage")
	}
}

func TestUploadInvalidDocType(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	body, contentType, err := buildMultipartBody(
		[]multipartField{{name: "doc_type", value: "DriversLicense"}},
		[]multipartFile{{field: "file", filename: "license.pdf", content: []byte("license")}},
	)
	if err != nil {
		t.Fatal(err)
	}

	fieldErrors, err := user.Post("/document/upload").Header("Content-Type", contentType).Body(body).DoFieldErrors()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fieldErrors["doc_type"]; !ok {
		t.Fatalf("expected doc_type error, got %v", fieldErrors)
	}

	if n := countRows(t, env.db, &schema.Document{}); n != 0 {
		t.Fatalf("expected 0 document rows, got %d", n)
	}
}

func TestDownloadAttachedDocumentAccess(t *testing.T) {
	env := setupTestEnv(t)

	owner, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	documentId, err := owner.uploadDocument(schema.DocPassport, "passport.pdf", []byte("passport scan"))
	if err != nil {
		t.Fatal(err)
	}

	other, err := env.newUser("user2")
	if err != nil {
		t.Fatal(err)
	}

	// Unattached documents are not tied to an applicant yet, any signed in
	// user can fetch them.
	if _, err := other.downloadDocument(documentId); err != nil {
		t.Fatal(err)
	}

	applicationId, err := owner.submitApplication(validApplicant(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := owner.attachDocument(applicationId, documentId); err != nil {
		t.Fatal(err)
	}

	if _, err := other.downloadDocument(documentId); err == nil {
		t.Fatal("other user should not be able to download an attached document")
	}

	if _, err := owner.downloadDocument(documentId); err != nil {
		t.Fatalf("owner should be able to download their document: %v", err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.downloadDocument(documentId); err != nil {
		t.Fatalf("admin should be able to download any document: %v", err)
	}
}

func TestDownloadMissingDocument(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("user1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.downloadDocument(uuid.NewString()); err == nil {
		t.Fatal("downloading a missing document should fail")
	}
}
