package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		gatingEventsTotal,
		gatingConfirmationsTotal,
		gatingDeliveriesTotal,
		gatingJoinRequestsTotal,
		storeErrorsTotal,
		telegramSendErrorsTotal,
	)
}

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultInvalid  = "invalid"
	ResultFailed   = "failed"
)

var (
	gatingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gating_events_total",
			Help: "Inbound events dispatched to the gating workflow by kind.",
		},
		[]string{"kind"},
	)

	gatingConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gating_confirmations_total",
			Help: "Confirmation button presses by outcome.",
		},
		[]string{"result"},
	)

	gatingDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gating_deliveries_total",
			Help: "Code submissions from confirmed users by outcome.",
		},
		[]string{"result"},
	)

	gatingJoinRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gating_join_requests_total",
			Help: "Channel join requests observed.",
		},
	)

	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Pending-state store failures by operation.",
		},
		[]string{"op"},
	)

	telegramSendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_send_errors_total",
			Help: "Failed outbound Telegram calls by operation.",
		},
		[]string{"op"},
	)
)

func IncEvent(kind string) {
	gatingEventsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncConfirmation(result string) {
	gatingConfirmationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncDelivery(result string) {
	gatingDeliveriesTotal.WithLabelValues(norm(result)).Inc()
}

func IncJoinRequest() {
	gatingJoinRequestsTotal.Inc()
}

func IncStoreError(op string) {
	storeErrorsTotal.WithLabelValues(norm(op)).Inc()
}

func IncSendError(op string) {
	telegramSendErrorsTotal.WithLabelValues(norm(op)).Inc()
}
