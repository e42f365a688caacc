package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entrygate_notifications_total",
	Help: "Outbound notifications by delivery result",
}, []string{"kind", "status"})

type jobKind string

const (
	jobText  jobKind = "text"
	jobImage jobKind = "image"
	jobAlert jobKind = "alert"
)

type job struct {
	kind    jobKind
	phone   string
	text    string
	path    string
	caption string
}

// Queue decouples callers from Telegram round-trips: sends are enqueued and
// drained by one worker, so a slow network call never stalls a session timer
// or a scan handler. Delivery failures are logged and counted, never
// propagated back into state transitions.
type Queue struct {
	sender Sender
	log    *slog.Logger
	jobs   chan job
}

func NewQueue(sender Sender, size int, log *slog.Logger) *Queue {
	return &Queue{sender: sender, log: log, jobs: make(chan job, size)}
}

// Run drains the queue until ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.deliver(ctx, j)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, j job) {
	var err error
	switch j.kind {
	case jobText:
		err = q.sender.SendText(ctx, j.phone, j.text)
	case jobImage:
		err = q.sender.SendImage(ctx, j.phone, j.path, j.caption)
	case jobAlert:
		err = q.sender.Alert(ctx, j.text)
	}
	if err != nil {
		notificationsTotal.WithLabelValues(string(j.kind), "failed").Inc()
		q.log.Error("notification delivery failed", "kind", string(j.kind), "err", err)
		return
	}
	notificationsTotal.WithLabelValues(string(j.kind), "sent").Inc()
}

func (q *Queue) enqueue(j job) error {
	select {
	case q.jobs <- j:
		return nil
	default:
		notificationsTotal.WithLabelValues(string(j.kind), "dropped").Inc()
		return fmt.Errorf("notify: queue full, %s dropped", j.kind)
	}
}

func (q *Queue) SendText(_ context.Context, phone, text string) error {
	return q.enqueue(job{kind: jobText, phone: phone, text: text})
}

func (q *Queue) SendImage(_ context.Context, phone, path, caption string) error {
	return q.enqueue(job{kind: jobImage, phone: phone, path: path, caption: caption})
}

func (q *Queue) Alert(_ context.Context, text string) error {
	return q.enqueue(job{kind: jobAlert, text: text})
}
