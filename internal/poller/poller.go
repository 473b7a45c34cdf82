// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sensorbox/internal/register"
	"github.com/tamzrod/sensorbox/internal/rtu"
)

// ErrEmptyPayload is returned when an accepted response carries no data.
var ErrEmptyPayload = errors.New("poller: accepted response without data")

// Transactor runs one request to completion. *rtu.Executor in production.
type Transactor interface {
	Do(req rtu.Request) (rtu.Result, error)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Location string
	Points   []Point

	// Now stamps samples. time.Now when nil.
	Now func() time.Time
}

// Poller reads every configured point once per cycle.
// It never aborts a cycle: a register that does not answer becomes Missing.
type Poller struct {
	cfg Config
	log zerolog.Logger
}

// New creates a poller with immutable config.
func New(cfg Config, log zerolog.Logger) (*Poller, error) {
	if len(cfg.Points) == 0 {
		return nil, errors.New("poller: at least one register required")
	}
	for _, pt := range cfg.Points {
		if err := pt.Descriptor.Validate(); err != nil {
			return nil, fmt.Errorf("poller: %w", err)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{cfg: cfg, log: log}, nil
}

// Points returns the configured points in column order.
func (p *Poller) Points() []Point { return p.cfg.Points }

// PollOnce performs exactly one poll cycle over tx.
// The sample is stamped when the cycle starts.
func (p *Poller) PollOnce(tx Transactor) PollResult {
	res := PollResult{
		Sample: Sample{
			At:       p.cfg.Now(),
			Location: p.cfg.Location,
			Names:    make([]string, 0, len(p.cfg.Points)),
			Values:   make([]register.Value, 0, len(p.cfg.Points)),
		},
	}

	var errs []error
	for _, pt := range p.cfg.Points {
		v, err := Read(tx, pt)
		if err != nil {
			p.log.Warn().
				Str("register", pt.Descriptor.Name).
				Err(err).
				Msg("register read failed, recording missing value")
			res.Failed = append(res.Failed, pt.Descriptor.Name)
			errs = append(errs, fmt.Errorf("%s: %w", pt.Descriptor.Name, err))
		}
		res.Sample.Names = append(res.Sample.Names, pt.Descriptor.Column())
		res.Sample.Values = append(res.Sample.Values, v)
	}

	res.Err = errors.Join(errs...)
	return res
}

// Read runs a single point. On any failure the value is Missing and the
// error says why: an executor error when the device gave no acceptable
// answer, ErrEmptyPayload when it answered without data.
func Read(tx Transactor, pt Point) (register.Value, error) {
	r, err := tx.Do(pt.Request())
	if err != nil {
		return register.Missing(), err
	}
	payload := r.Payload()
	if len(payload) == 0 {
		return register.Missing(), ErrEmptyPayload
	}
	return register.Decode(payload, pt.Descriptor), nil
}
