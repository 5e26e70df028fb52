package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applicationsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_applications_submitted", Help: "Applications accepted by the intake workflow"})
	submissionsRejected   = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_submissions_rejected", Help: "Submissions rejected by field validation"})
	paymentsAccepted      = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_payments_accepted", Help: "Payments recorded against applications"})
	paymentsRejected      = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_payments_rejected", Help: "Payments rejected because one already exists"})
	documentsStored       = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_documents_stored", Help: "Document files written to the blob store"})
)
