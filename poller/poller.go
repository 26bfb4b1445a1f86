package poller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MagicHoovy/Steve/changes"
	"github.com/MagicHoovy/Steve/internal"
	"github.com/MagicHoovy/Steve/metrics/counters"
	"github.com/MagicHoovy/Steve/models"
	"github.com/MagicHoovy/Steve/steve"
	"github.com/MagicHoovy/Steve/utility"
	"github.com/MagicHoovy/Steve/validator"
)

type Fetcher interface {
	Fetch(ctx context.Context, kind models.EntityKind, chargerId string) (interface{}, error)
}

type Repository interface {
	Upsert(ctx context.Context, kind models.EntityKind, doc models.Document) (*internal.UpsertResult, error)
}

type Settings struct {
	Interval  time.Duration
	Threshold int
	CoolDown  time.Duration
}

var gauges = []string{models.MeterEnergy, models.MeterTemperature, models.MeterCurrent, models.MeterPower, models.MeterVoltage}

// Poller mirrors one kind of document for a list of chargers. Chargers are
// handled one after another; a slow charger delays the rest of the tick.
type Poller struct {
	kind     models.EntityKind
	chargers []string
	fetcher  Fetcher
	store    Repository
	log      internal.LogHandler
	handlers []internal.EventHandler
	settings Settings
	backoff  *backoff
	sleep    func(ctx context.Context, d time.Duration) bool
}

func New(kind models.EntityKind, chargers []string, fetcher Fetcher, store Repository, log internal.LogHandler, settings Settings) *Poller {
	return &Poller{
		kind:     kind,
		chargers: chargers,
		fetcher:  fetcher,
		store:    store,
		log:      log,
		settings: settings,
		backoff:  newBackoff(settings.Threshold, settings.Interval, settings.CoolDown),
		sleep:    sleep,
	}
}

func (p *Poller) AddEventHandler(handler internal.EventHandler) {
	p.handlers = append(p.handlers, handler)
}

// Run polls until ctx is cancelled. Cancellation is honoured between chargers
// and during the pause; the charger in progress is always finished.
func (p *Poller) Run(ctx context.Context) error {
	p.log.FeatureEvent(p.kind.Name, "", fmt.Sprintf("starting data collection for chargers %v into %s", p.chargers, p.kind.Collection))
	p.log.FeatureEvent(p.kind.Name, "", fmt.Sprintf("data will be collected every %v", p.settings.Interval))
	for ctx.Err() == nil {
		ok := p.Tick(ctx)
		if ctx.Err() != nil {
			break
		}
		delay, coolingDown := p.backoff.next(ok)
		counters.ConsecutiveFailures(p.kind.Name, p.backoff.failures)
		if coolingDown {
			counters.CountCoolDown(p.kind.Name)
			p.log.Warn(fmt.Sprintf("%s: too many errors (%d), waiting %v before retry", p.kind.Name, p.backoff.threshold, delay))
		}
		if !p.sleep(ctx, delay) {
			break
		}
	}
	p.log.FeatureEvent(p.kind.Name, "", "shutdown complete")
	return nil
}

// Tick processes every charger once and reports whether all of them succeeded.
// Chargers without data count as success.
func (p *Poller) Tick(ctx context.Context) bool {
	tickId := utility.NewUUID()
	p.log.Debug(fmt.Sprintf("%s: tick %s started", p.kind.Name, tickId))
	failed := 0
	for _, chargerId := range p.chargers {
		if ctx.Err() != nil {
			p.log.Debug(fmt.Sprintf("%s: tick %s interrupted before %s", p.kind.Name, tickId, chargerId))
			break
		}
		// a started step is not interrupted, its calls are bounded by their own timeouts
		if err := p.process(context.WithoutCancel(ctx), chargerId); err != nil {
			failed++
			p.log.Error(fmt.Sprintf("%s: charger %s", p.kind.Name, chargerId), err)
		}
	}
	p.log.Debug(fmt.Sprintf("%s: tick %s finished, %d of %d failed", p.kind.Name, tickId, failed, len(p.chargers)))
	return failed == 0
}

func (p *Poller) process(ctx context.Context, chargerId string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()

	data, err := p.fetcher.Fetch(ctx, p.kind, chargerId)
	if errors.Is(err, steve.ErrNotFound) {
		counters.ObserveFetch(p.kind.Name, chargerId, "not_found")
		p.log.FeatureEvent(p.kind.Name, chargerId, "no transactions found for charger")
		return nil
	}
	if err != nil {
		counters.ObserveFetch(p.kind.Name, chargerId, "error")
		return err
	}
	doc, err := validator.Validate(data, p.kind.Required)
	if err != nil {
		counters.ObserveFetch(p.kind.Name, chargerId, "invalid")
		return err
	}
	counters.ObserveFetch(p.kind.Name, chargerId, "ok")
	p.log.FeatureEvent(p.kind.Name, chargerId, "data fetched successfully")
	if doc.HasMeterValues() {
		p.log.FeatureEvent(p.kind.Name, chargerId, "meter values: "+doc.MeterSummary())
		p.observeMeter(doc)
	}

	result, err := p.store.Upsert(ctx, p.kind, doc)
	if err != nil {
		counters.ObserveUpsert(p.kind.Collection, "error")
		return err
	}
	counters.ObserveUpsert(p.kind.Collection, string(result.Outcome))

	subject := p.subject(doc)
	switch result.Outcome {
	case internal.Created:
		p.log.FeatureEvent(p.kind.Name, chargerId, "inserted new "+subject)
	case internal.Modified:
		p.emit(chargerId, changes.Detect(result.Previous, doc))
		p.log.FeatureEvent(p.kind.Name, chargerId, "updated "+subject)
	case internal.Unchanged:
		p.log.Debug(fmt.Sprintf("%s: %s: no changes in %s", p.kind.Name, chargerId, subject))
	}
	return nil
}

func (p *Poller) subject(doc models.Document) string {
	if p.kind.KeyField == models.FieldChargeBoxId {
		return "data for charger " + doc.ChargeBoxId()
	}
	return fmt.Sprintf("transaction %s for charger %s", p.kind.Key(doc), doc.ChargeBoxId())
}

func (p *Poller) emit(chargerId string, observations []changes.Observation) {
	for _, observation := range observations {
		p.log.FeatureEvent(p.kind.Name, chargerId, observation.String())
		switch observation.Type {
		case changes.StatusChanged:
			counters.CountStatusChange(observation.ChargeBoxId, observation.To)
		case changes.EnergyIncreased:
			counters.CountConsumedEnergy(observation.ChargeBoxId, observation.Delta)
		}
		if len(p.handlers) == 0 {
			continue
		}
		event := internal.NewEventMessage(p.kind.Name, observation)
		for _, handler := range p.handlers {
			internal.DispatchEvent(handler, event)
		}
	}
}

func (p *Poller) observeMeter(doc models.Document) {
	connectorId := strconv.Itoa(doc.ConnectorId())
	for _, measurand := range gauges {
		if value, ok := doc.MeterFloat(measurand); ok {
			counters.ObserveMeterValue(doc.ChargeBoxId(), connectorId, measurand, value)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
