package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JournalRecordsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_journal_records_written_total",
			Help: "Total journal records appended, by kind",
		},
		[]string{"kind"},
	)

	JournalWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_bot_journal_write_errors_total",
		Help: "Total journal write or rotation failures (writes are best-effort, never fatal)",
	})

	JournalIndexErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_bot_journal_index_errors_total",
			Help: "Total failures mirroring a record into the optional Postgres index",
		},
		[]string{"op"},
	)
)
