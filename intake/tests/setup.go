package tests

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"visaflow/intake/auth"
	"visaflow/intake/schema"
	"visaflow/intake/services"
	"visaflow/intake/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	intake  services.Intake
	api     chi.Router
	storage storage.Storage
	db      *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatal(err)
	}

	// A second connection to an in-memory sqlite db would see a different
	// database, so the pool is capped at one connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&schema.User{}, &schema.Applicant{}, &schema.Application{},
		&schema.Document{}, &schema.DocumentApplication{}, &schema.Payment{},
		&schema.Operator{}, &schema.Administrator{},
	)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	secret := []byte("290zcv02ai249")

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        secret,
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	intake := services.NewIntake(db, store, userAuth)

	return &testEnv{intake: intake, api: intake.Routes(), storage: store, db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	return count
}

func validApplicant() map[string]interface{} {
	return map[string]interface{}{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@mail.com",
		"phone":      "+4912345678",
	}
}
