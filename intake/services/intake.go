package services

import (
	"log"
	"net/http"
	"os"
	"visaflow/intake/auth"
	"visaflow/intake/storage"
	"visaflow/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Intake composes the services of the application intake workflow behind a
// single router.
type Intake struct {
	user        UserService
	application ApplicationService
	payment     PaymentService
	document    DocumentService
	staff       StaffService
}

func NewIntake(db *gorm.DB, fileStorage storage.Storage, userAuth auth.IdentityProvider) Intake {
	return Intake{
		user: UserService{db: db, userAuth: userAuth},
		application: ApplicationService{
			db:       db,
			storage:  fileStorage,
			userAuth: userAuth,
		},
		payment: PaymentService{db: db, userAuth: userAuth},
		document: DocumentService{
			db:       db,
			storage:  fileStorage,
			userAuth: userAuth,
		},
		staff: StaffService{db: db, userAuth: userAuth},
	}
}

func (m *Intake) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", m.user.Routes())
	r.Mount("/application", m.application.Routes())
	r.Mount("/payment", m.payment.Routes())
	r.Mount("/document", m.document.Routes())
	r.Mount("/staff", m.staff.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
