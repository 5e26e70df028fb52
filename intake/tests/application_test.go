package tests

import (
	"io/fs"
	"path/filepath"
	"reflect"
	"testing"
	"visaflow/intake/schema"
)

func TestSubmitApplication(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	documents := []documentEntry{
		{DocType: schema.DocPassport, FileRef: "documents/passport-scan"},
		{DocType: "", FileRef: "documents/orphan"},
		{DocType: schema.DocPhoto, FileRef: "documents/photo"},
	}

	applicationId, err := user.submitApplication(validApplicant(), documents)
	if err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, env.db, &schema.Applicant{}); n != 1 {
		t.Fatalf("expected 1 applicant row, got %d", n)
	}
	if n := countRows(t, env.db, &schema.Application{}); n != 1 {
		t.Fatalf("expected 1 application row, got %d", n)
	}

	info, err := user.getApplication(applicationId)
	if err != nil {
		t.Fatal(err)
	}

	if info.Status != schema.InProcessing {
		t.Fatalf("new application should have status '%v', got '%v'", schema.InProcessing, info.Status)
	}
	if info.Applicant.FirstName != "Ada" || info.Applicant.LastName != "Lovelace" {
		t.Fatalf("incorrect applicant returned: %+v", info.Applicant)
	}
	if info.Payment != nil {
		t.Fatal("new application should not have a payment")
	}

	// The incomplete entry is skipped, the two complete ones are kept.
	if len(info.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(info.Documents))
	}
	types := map[string]bool{}
	for _, doc := range info.Documents {
		types[doc.DocType] = true
	}
	if !types[schema.DocPassport] || !types[schema.DocPhoto] {
		t.Fatalf("wrong document types attached: %v", types)
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	applicant := map[string]interface{}{
		"first_name": "ada",
		"last_name":  "Lovelace",
		"email":      "not-an-email",
		"phone":      "4912345678",
	}

	fieldErrors, err := user.Post("/application/submit").Json(applicant).DoFieldErrors()
	if err != nil {
		t.Fatal(err)
	}

	for _, field := range []string{"first_name", "email", "phone"} {
		if _, ok := fieldErrors[field]; !ok {
			t.Fatalf("expected error for field %v, got %v", field, fieldErrors)
		}
	}
	if _, ok := fieldErrors["last_name"]; ok {
		t.Fatalf("last_name is valid, should not have an error: %v", fieldErrors)
	}

	// A rejected submission must leave no partial rows behind.
	if n := countRows(t, env.db, &schema.Applicant{}); n != 0 {
		t.Fatalf("expected 0 applicant rows, got %d", n)
	}
	if n := countRows(t, env.db, &schema.Application{}); n != 0 {
		t.Fatalf("expected 0 application rows, got %d", n)
	}
}

func TestSubmitInvalidDocType(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	body := validApplicant()
	body["documents"] = []documentEntry{
		{DocType: "DriversLicense", FileRef: "documents/license"},
	}

	fieldErrors, err := user.Post("/application/submit").Json(body).DoFieldErrors()
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := fieldErrors["documents[0].doc_type"]; !ok {
		t.Fatalf("expected error for document type, got %v", fieldErrors)
	}

	if n := countRows(t, env.db, &schema.Document{}); n != 0 {
		t.Fatalf("expected 0 document rows, got %d", n)
	}
}

func TestSubmitFormStopsAtGap(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	fields := []multipartField{
		{name: "first_name", value: "Ada"},
		{name: "last_name", value: "Lovelace"},
		{name: "email", value: "ada@mail.com"},
		{name: "phone", value: "+4912345678"},
		{name: "doc_type_0", value: schema.DocPassport},
		// No doc_type_1/file_1, so doc_type_2 is never reached.
		{name: "doc_type_2", value: schema.DocPhoto},
	}
	files := []multipartFile{
		{field: "file_0", filename: "passport.pdf", content: []byte("passport scan")},
		{field: "file_2", filename: "photo.jpg", content: []byte("photo")},
	}

	applicationId, err := user.submitApplicationForm(fields, files)
	if err != nil {
		t.Fatal(err)
	}

	info, err := user.getApplication(applicationId)
	if err != nil {
		t.Fatal(err)
	}

	if len(info.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(info.Documents))
	}
	if info.Documents[0].DocType != schema.DocPassport {
		t.Fatalf("wrong document attached: %+v", info.Documents[0])
	}

	content, err := user.downloadDocument(info.Documents[0].DocumentId.String())
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "passport scan" {
		t.Fatalf("wrong document content: '%v'", string(content))
	}
}

func TestListApplications(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	first, err := user.submitApplication(validApplicant(), nil)
	if err != nil {
		t.Fatal(err)
	}

	second, err := user.submitApplication(map[string]interface{}{
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      "grace@mail.com",
		"phone":      "+12025550117",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	apps, err := user.listApplications()
	if err != nil {
		t.Fatal(err)
	}

	if len(apps) != 2 {
		t.Fatalf("expected 2 applications, got %d", len(apps))
	}
	if apps[0].ApplicationId.String() != first || apps[1].ApplicationId.String() != second {
		t.Fatalf("applications not in submission order: %v %v", apps[0].ApplicationId, apps[1].ApplicationId)
	}

	other, err := env.newUser("applicant2")
	if err != nil {
		t.Fatal(err)
	}

	otherApps, err := other.listApplications()
	if err != nil {
		t.Fatal(err)
	}
	if len(otherApps) != 0 {
		t.Fatalf("other user should see no applications, got %d", len(otherApps))
	}
}

func TestListApplicationsRoundTrip(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	applicationId, err := user.submitApplication(validApplicant(), []documentEntry{
		{DocType: schema.DocPassport, FileRef: "documents/passport-scan"},
	})
	if err != nil {
		t.Fatal(err)
	}

	first, err := user.listApplications()
	if err != nil {
		t.Fatal(err)
	}
	second, err := user.listApplications()
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated list calls disagree:\n%+v\n%+v", first, second)
	}

	if len(first) != 1 {
		t.Fatalf("expected 1 application, got %d", len(first))
	}

	listed := first[0]
	if listed.ApplicationId.String() != applicationId {
		t.Fatalf("wrong application listed: %v", listed.ApplicationId)
	}
	if listed.Status != schema.InProcessing {
		t.Fatalf("expected status '%v', got '%v'", schema.InProcessing, listed.Status)
	}
	if listed.Applicant.FirstName != "Ada" || listed.Applicant.LastName != "Lovelace" ||
		listed.Applicant.Email != "ada@mail.com" || listed.Applicant.Phone != "+4912345678" {
		t.Fatalf("incorrect applicant in listing: %+v", listed.Applicant)
	}
	if listed.Payment != nil {
		t.Fatal("unpaid application should not list a payment")
	}
	if len(listed.Documents) != 1 || listed.Documents[0].DocType != schema.DocPassport ||
		listed.Documents[0].FileRef != "documents/passport-scan" {
		t.Fatalf("incorrect documents in listing: %+v", listed.Documents)
	}
}

func countStoredFiles(t *testing.T, basepath string) int {
	files := 0
	err := filepath.WalkDir(basepath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestSubmitFormCleansUpFilesOnFailure(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	// Force the submission transaction to fail after the upload is stored.
	if err := env.db.Exec("DROP TABLE applications").Error; err != nil {
		t.Fatal(err)
	}

	fields := []multipartField{
		{name: "first_name", value: "Ada"},
		{name: "last_name", value: "Lovelace"},
		{name: "email", value: "ada@mail.com"},
		{name: "phone", value: "+4912345678"},
		{name: "doc_type_0", value: schema.DocPassport},
	}
	files := []multipartFile{
		{field: "file_0", filename: "passport.pdf", content: []byte("passport scan")},
	}

	if _, err := user.submitApplicationForm(fields, files); err == nil {
		t.Fatal("submission should fail without an applications table")
	}

	if n := countStoredFiles(t, env.storage.Location()); n != 0 {
		t.Fatalf("failed submission left %d files in storage", n)
	}
}

func TestGetApplicationAccess(t *testing.T) {
	env := setupTestEnv(t)

	owner, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	applicationId, err := owner.submitApplication(validApplicant(), nil)
	if err != nil {
		t.Fatal(err)
	}

	other, err := env.newUser("applicant2")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.getApplication(applicationId); err == nil {
		t.Fatal("other user should not be able to access the application")
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.getApplication(applicationId); err != nil {
		t.Fatalf("admin should be able to access the application: %v", err)
	}
}

func TestAttachExistingDocument(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("applicant1")
	if err != nil {
		t.Fatal(err)
	}

	applicationId, err := user.submitApplication(validApplicant(), nil)
	if err != nil {
		t.Fatal(err)
	}

	documentId, err := user.uploadDocument(schema.DocTravelInsurance, "insurance.pdf", []byte("policy"))
	if err != nil {
		t.Fatal(err)
	}

	if err := user.attachDocument(applicationId, documentId); err != nil {
		t.Fatal(err)
	}
	// Attaching twice is a no-op.
	if err := user.attachDocument(applicationId, documentId); err != nil {
		t.Fatal(err)
	}

	info, err := user.getApplication(applicationId)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(info.Documents))
	}
	if info.Documents[0].DocType != schema.DocTravelInsurance {
		t.Fatalf("wrong document attached: %+v", info.Documents[0])
	}
}
