package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"visaflow/intake/auth"
	"visaflow/intake/schema"
	"visaflow/intake/services"
	"visaflow/intake/storage"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type intakeEnv struct {
	DatabaseUri    string `env:"DATABASE_URI,required"`
	ShareDir       string `env:"SHARE_DIR,required"`
	JwtSecret      string `env:"JWT_SECRET,required"`
	PublicHostname string `env:"PUBLIC_HOSTNAME" envDefault:"http://localhost:3000"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	// If ObjectStoreEndpoint is set documents go to the bucket instead of the
	// shared disk.
	ObjectStoreEndpoint  string `env:"OBJECT_STORE_ENDPOINT"`
	ObjectStoreAccessKey string `env:"OBJECT_STORE_ACCESS_KEY"`
	ObjectStoreSecretKey string `env:"OBJECT_STORE_SECRET_KEY"`
	ObjectStoreBucket    string `env:"OBJECT_STORE_BUCKET" envDefault:"visaflow-documents"`
	ObjectStoreRegion    string `env:"OBJECT_STORE_REGION"`
	ObjectStoreUseSSL    bool   `env:"OBJECT_STORE_USE_SSL"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func (e *intakeEnv) postgresDsn() string {
	parts, err := url.Parse(e.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Applicant{}, &schema.Application{},
		&schema.Document{}, &schema.DocumentApplication{}, &schema.Payment{},
		&schema.Operator{}, &schema.Administrator{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func initStorage(e *intakeEnv) storage.Storage {
	if e.ObjectStoreEndpoint != "" {
		objectStorage, err := storage.NewObjectStorage(storage.ObjectStorageArgs{
			Endpoint:  e.ObjectStoreEndpoint,
			AccessKey: e.ObjectStoreAccessKey,
			SecretKey: e.ObjectStoreSecretKey,
			Bucket:    e.ObjectStoreBucket,
			Region:    e.ObjectStoreRegion,
			UseSSL:    e.ObjectStoreUseSSL,
		})
		if err != nil {
			log.Fatalf("error creating object storage: %v", err)
		}
		return objectStorage
	}

	return storage.NewSharedDisk(e.ShareDir)
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	var cfg intakeEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error loading env variables: %v", err)
	}

	err := os.MkdirAll(filepath.Join(cfg.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/visaflow.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(cfg.postgresDsn())

	fileStorage := initStorage(&cfg)

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(cfg.JwtSecret),
			AdminUsername: cfg.AdminUsername,
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	intake := services.NewIntake(db, fileStorage, identityProvider)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.PublicHostname},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", intake.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
