package predictor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

// TrainingSource supplies the feature-complete songs a model is built from.
type TrainingSource interface {
	GetFeatureCompleteSongs(ctx context.Context) ([]models.Song, error)
}

// Predictor owns the feature model. The model is rebuilt lazily: on first use,
// after Invalidate, or once it is older than the refresh interval. Concurrent
// callers share a single in-flight build.
type Predictor struct {
	source  TrainingSource
	logger  *logrus.Logger
	refresh time.Duration
	now     func() time.Time

	model  *atomic.Pointer[Model]
	stale  *atomic.Bool
	closed *atomic.Bool
	builds *atomic.Int64
	group  singleflight.Group
}

type Option func(*Predictor)

// WithRefreshInterval sets the maximum model age. Zero disables age-based
// rebuilds.
func WithRefreshInterval(d time.Duration) Option {
	return func(p *Predictor) { p.refresh = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Predictor) { p.now = now }
}

func New(source TrainingSource, logger *logrus.Logger, opts ...Option) *Predictor {
	p := &Predictor{
		source: source,
		logger: logger,
		now:    time.Now,
		model:  atomic.NewPointer[Model](nil),
		stale:  atomic.NewBool(false),
		closed: atomic.NewBool(false),
		builds: atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status describes the current model for monitoring.
type Status struct {
	Initialized  bool      `json:"initialized"`
	Mode         Mode      `json:"mode,omitempty"`
	TrainingSize int       `json:"trainingSize"`
	BuiltAt      time.Time `json:"builtAt,omitempty"`
	Stale        bool      `json:"stale"`
	Builds       int64     `json:"builds"`
}

// Initialize builds the model now, replacing any current one.
func (p *Predictor) Initialize(ctx context.Context) (Status, error) {
	if _, err := p.rebuild(ctx); err != nil {
		return p.Status(), err
	}
	return p.Status(), nil
}

// Model returns the current snapshot, building or rebuilding it first when
// needed. The snapshot must be treated as read-only.
func (p *Predictor) Model(ctx context.Context) (*Model, error) {
	if p.closed.Load() {
		return nil, errors.ErrPredictorClosed
	}
	if m := p.model.Load(); m != nil && !p.needsRebuild(m) {
		return m, nil
	}
	return p.rebuild(ctx)
}

func (p *Predictor) needsRebuild(m *Model) bool {
	if p.stale.Load() {
		return true
	}
	return p.refresh > 0 && p.now().Sub(m.builtAt) >= p.refresh
}

func (p *Predictor) rebuild(ctx context.Context) (*Model, error) {
	if p.closed.Load() {
		return nil, errors.ErrPredictorClosed
	}
	result, err, shared := p.group.Do("model", func() (interface{}, error) {
		start := time.Now()
		// cleared before loading so an Invalidate racing with the load
		// schedules another build
		p.stale.Store(false)

		songs, err := p.source.GetFeatureCompleteSongs(ctx)
		if err != nil {
			p.stale.Store(true)
			ModelBuildsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		m := build(songs, p.now())
		if p.closed.Load() {
			return nil, errors.ErrPredictorClosed
		}
		p.model.Store(m)
		p.builds.Inc()

		ModelBuildsTotal.WithLabelValues(string(m.mode)).Inc()
		ModelBuildSeconds.Observe(time.Since(start).Seconds())
		TrainingSongs.Set(float64(m.trainingSize))
		if m.IsFallback() {
			FallbackMode.Set(1)
			p.logger.WithFields(logrus.Fields{
				"trainingSongs": m.trainingSize,
				"required":      MinTrainingSongs,
			}).Warn("Too few feature-complete songs, feature model using fallback table")
		} else {
			FallbackMode.Set(0)
		}

		p.logger.WithFields(logrus.Fields{
			"mode":          m.mode,
			"trainingSongs": m.trainingSize,
			"artists":       len(m.artists),
			"decades":       len(m.decades),
			"genres":        len(m.genres),
			"moods":         len(m.moods),
			"duration":      time.Since(start),
		}).Info("Feature model built")
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("Joined in-flight feature model build")
	}
	return result.(*Model), nil
}

// Invalidate marks the model stale; the next use rebuilds it.
func (p *Predictor) Invalidate() {
	p.stale.Store(true)
	p.logger.Debug("Feature model invalidated")
}

// Close drops the model. Later calls fail with ErrPredictorClosed.
func (p *Predictor) Close() error {
	p.closed.Store(true)
	p.model.Store(nil)
	return nil
}

func (p *Predictor) Status() Status {
	s := Status{Stale: p.stale.Load(), Builds: p.builds.Load()}
	if m := p.model.Load(); m != nil {
		s.Initialized = true
		s.Mode = m.mode
		s.TrainingSize = m.trainingSize
		s.BuiltAt = m.builtAt
	}
	return s
}

// PredictFeature is Model(ctx).PredictFeature. The only errors are those
// of the training source.
func (p *Predictor) PredictFeature(ctx context.Context, song models.Song, f features.Feature) (Prediction, error) {
	m, err := p.Model(ctx)
	if err != nil {
		return Prediction{}, err
	}
	return m.PredictFeature(song, f), nil
}

func (p *Predictor) PredictGenres(ctx context.Context, song models.Song) ([]string, error) {
	m, err := p.Model(ctx)
	if err != nil {
		return nil, err
	}
	return m.PredictGenres(song), nil
}

func (p *Predictor) PredictMoods(ctx context.Context, song models.Song) ([]string, error) {
	m, err := p.Model(ctx)
	if err != nil {
		return nil, err
	}
	return m.PredictMoods(song), nil
}

func (p *Predictor) Complete(ctx context.Context, song models.Song) (models.Song, error) {
	m, err := p.Model(ctx)
	if err != nil {
		return song, err
	}
	return m.Complete(song), nil
}
