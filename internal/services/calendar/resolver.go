package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rickar/cal/v2"
	"gopkg.in/yaml.v3"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

// ErrConfigurationMissing is returned when no calendar resolves for a
// contract. Callers must treat this as "no SLA applicable", not a crash.
var ErrConfigurationMissing = errors.New("calendar: no work calendar configured")

// Source is the slice of the ticket gateway the resolver needs.
type Source interface {
	GetContractCalendarAndPolicies(ctx context.Context, contractID int64) (*models.WorkCalendar, []*models.SlaPolicy, error)
	GetCalendar(ctx context.Context, calendarID string) (*models.WorkCalendar, error)
}

// Resolver produces the applicable work calendar for a contract: the
// contract's own calendar, falling back to a configured default, with
// system-wide recurring public holidays merged in.
type Resolver struct {
	source            Source
	defaultCalendarID string
	publicHolidays    []*cal.Holiday
	logger            *log.Logger
}

// NewResolver creates a resolver. defaultCalendarID may be empty, in which
// case contracts without an own calendar have no SLA.
func NewResolver(source Source, defaultCalendarID string, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		source:            source,
		defaultCalendarID: defaultCalendarID,
		logger:            logger,
	}
}

// LoadPublicHolidays parses the recurring public holiday configuration and
// registers it for every resolved calendar. The YAML maps month to day to
// holiday name:
//
//	1:
//	  1: "New Year"
//	12:
//	  25: "Christmas"
func (r *Resolver) LoadPublicHolidays(yamlData []byte) error {
	var days map[int]map[int]string
	if err := yaml.Unmarshal(yamlData, &days); err != nil {
		return fmt.Errorf("calendar: parse public holidays: %w", err)
	}

	var holidays []*cal.Holiday
	for month, dayMap := range days {
		if month < 1 || month > 12 {
			continue
		}
		for day, name := range dayMap {
			if day < 1 || day > 31 {
				continue
			}
			holidays = append(holidays, &cal.Holiday{
				Name:  name,
				Type:  cal.ObservancePublic,
				Month: time.Month(month),
				Day:   day,
				Func:  cal.CalcDayOfMonth,
			})
		}
	}
	r.publicHolidays = holidays
	return nil
}

// ForContract resolves the calendar for a contract. An unknown contract or a
// contract without any resolvable calendar yields ErrConfigurationMissing.
func (r *Resolver) ForContract(ctx context.Context, contractID int64) (*models.WorkCalendar, error) {
	calendar, _, err := r.source.GetContractCalendarAndPolicies(ctx, contractID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: contract %d unknown", ErrConfigurationMissing, contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("calendar: resolve contract %d: %w", contractID, err)
	}

	if calendar == nil {
		if r.defaultCalendarID == "" {
			return nil, fmt.Errorf("%w: contract %d has no calendar and no default is configured", ErrConfigurationMissing, contractID)
		}
		calendar, err = r.source.GetCalendar(ctx, r.defaultCalendarID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: default calendar %s missing", ErrConfigurationMissing, r.defaultCalendarID)
		}
		if err != nil {
			return nil, fmt.Errorf("calendar: load default %s: %w", r.defaultCalendarID, err)
		}
		r.logger.Printf("calendar: contract %d falls back to default calendar %s", contractID, r.defaultCalendarID)
	}

	if !calendar.HasWorkingDay() {
		return nil, fmt.Errorf("%w: calendar %s has no working day", ErrConfigurationMissing, calendar.ID)
	}

	return r.withPublicHolidays(calendar), nil
}

// withPublicHolidays returns a shallow copy of the calendar with the
// system-wide recurring holidays merged in. The stored calendar is never
// mutated.
func (r *Resolver) withPublicHolidays(c *models.WorkCalendar) *models.WorkCalendar {
	if len(r.publicHolidays) == 0 {
		return c
	}
	merged := *c
	combined := &cal.Calendar{Name: c.Name}
	if c.Recurring != nil {
		combined.AddHoliday(c.Recurring.Holidays...)
	}
	combined.AddHoliday(r.publicHolidays...)
	merged.Recurring = combined
	return &merged
}
