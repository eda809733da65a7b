package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mailSendSuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_success_total",
			Help: "Total number of emails accepted by the SMTP server",
		},
		[]string{"host"},
	)

	mailSendFailure = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_failure_total",
			Help: "Total number of emails the SMTP server rejected or could not be reached for",
		},
		[]string{"host"},
	)

	// status: sent, failed, skipped
	bulkRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_import_rows_total",
			Help: "Spreadsheet rows processed by bulk import, by outcome",
		},
		[]string{"status"},
	)
)
