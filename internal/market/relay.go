package market

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gocelery/gocelery"
	"github.com/gomodule/redigo/redis"
	"github.com/lagrangedao/go-compute-market/constants"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
)

const relayBuffer = 1024

// EventRelay forwards ledger events to a celery queue on redis so they
// outlive the node process. OnEvent only enqueues locally; a background
// loop publishes to the broker.
type EventRelay struct {
	cli    *gocelery.CeleryClient
	events chan ledger.Event
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

func NewEventRelay(pool *redis.Pool, workers int) (*EventRelay, error) {
	celeryClient, err := gocelery.NewCeleryClient(
		gocelery.NewRedisBroker(pool),
		gocelery.NewRedisBackend(pool),
		workers)
	if err != nil {
		return nil, err
	}
	celeryClient.Register(constants.TASK_LEDGER_EVENT, RecordLedgerEvent)

	return &EventRelay{
		cli:    celeryClient,
		events: make(chan ledger.Event, relayBuffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

func (r *EventRelay) OnEvent(e ledger.Event) {
	select {
	case r.events <- e:
	default:
		logs.GetLogger().Warnf("event relay queue full, dropping %s event of %s", e.Type, e.Caller)
	}
}

func (r *EventRelay) Start() {
	r.cli.StartWorker()
	go r.run()
}

func (r *EventRelay) run() {
	defer close(r.doneCh)
	for {
		select {
		case e := <-r.events:
			r.publish(e)
		case <-r.stopCh:
			for {
				select {
				case e := <-r.events:
					r.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (r *EventRelay) publish(e ledger.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logs.GetLogger().Errorf("encoding ledger event %s: %v", e.Type, err)
		return
	}
	if _, err := r.cli.Delay(constants.TASK_LEDGER_EVENT, string(payload)); err != nil {
		logs.GetLogger().Errorf("Failed relay ledger event %s, error: %v", e.Type, err)
	}
}

// Stop drains pending events to the broker, then stops the workers.
func (r *EventRelay) Stop(ctx context.Context) error {
	r.once.Do(func() { close(r.stopCh) })
	select {
	case <-r.doneCh:
	case <-ctx.Done():
		r.cli.StopWorker()
		return ctx.Err()
	}
	r.cli.StopWorker()
	return nil
}

// RecordLedgerEvent is the celery task consuming relayed events.
func RecordLedgerEvent(payload string) string {
	var e ledger.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		logs.GetLogger().Errorf("decoding relayed ledger event: %v", err)
		return ""
	}
	switch e.Type {
	case ledger.EventJobRequested, ledger.EventJobCompleted:
		logs.GetLogger().Infof("ledger event %s, job: %d, caller: %s, counterparty: %s, resources: %d, amount: %d",
			e.Type, e.JobID, e.Caller, e.Counterparty, e.Resources, e.Amount)
	default:
		logs.GetLogger().Infof("ledger event %s, caller: %s, amount: %d", e.Type, e.Caller, e.Amount)
	}
	return string(e.Type)
}
