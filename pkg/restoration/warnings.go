package restoration

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// WarningKind classifies an advisory condition.
type WarningKind int

const (
	// WarnBoundaryEffects: more decomposition levels than the shortest
	// axis supports.
	WarnBoundaryEffects WarningKind = iota + 1
	// WarnThresholdIgnored: an explicit threshold was superseded by a
	// thresholding method.
	WarnThresholdIgnored
	// WarnNonOrthogonal: a biorthogonal wavelet was used for thresholding.
	WarnNonOrthogonal
	// WarnAmbiguousChannels: a short last axis was treated as spatial.
	WarnAmbiguousChannels
	// WarnImplicitRescale: sigma rescaling was not chosen explicitly.
	WarnImplicitRescale
	// WarnChannelsInterpreted: an unusually long last axis was treated as
	// channels.
	WarnChannelsInterpreted
)

var warningKindNames = map[WarningKind]string{
	WarnBoundaryEffects:     "boundary-effects",
	WarnThresholdIgnored:    "threshold-ignored",
	WarnNonOrthogonal:       "non-orthogonal-wavelet",
	WarnAmbiguousChannels:   "ambiguous-channels",
	WarnImplicitRescale:     "deprecated-implicit-rescale",
	WarnChannelsInterpreted: "channels-interpreted",
}

func (k WarningKind) String() string {
	if name, ok := warningKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("WarningKind(%d)", int(k))
}

// IsDeprecation reports whether the warning flags reliance on an implicit
// default rather than a problem with the result.
func (k WarningKind) IsDeprecation() bool { return k == WarnImplicitRescale }

// Warning is a condition that does not invalidate a result.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string { return w.Kind.String() + ": " + w.Message }

func warnf(kind WarningKind, format string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Reporter receives warnings. Implementations must be safe for concurrent
// use, cycle spinning reports from several workers at once.
type Reporter interface {
	Warn(w Warning)
}

// LogReporter writes warnings to a logrus logger.
type LogReporter struct {
	Logger logrus.FieldLogger
}

func (r LogReporter) Warn(w Warning) {
	entry := r.Logger.WithField("kind", w.Kind.String())
	if w.Kind.IsDeprecation() {
		entry = entry.WithField("deprecation", true)
	}
	entry.Warn(w.Message)
}

// Recorder keeps every warning it receives.
type Recorder struct {
	mu       sync.Mutex
	warnings []Warning
}

func (r *Recorder) Warn(w Warning) {
	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
}

// Warnings returns a copy of the recorded warnings.
func (r *Recorder) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.warnings...)
}

// Has reports whether a warning of kind was recorded.
func (r *Recorder) Has(kind WarningKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// Reset drops all recorded warnings.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.warnings = nil
	r.mu.Unlock()
}

var defaultReporter Reporter = LogReporter{Logger: logrus.StandardLogger()}

func reporterOrDefault(r Reporter) Reporter {
	if r == nil {
		return defaultReporter
	}
	return r
}

func emit(r Reporter, warnings []Warning) {
	r = reporterOrDefault(r)
	for _, w := range warnings {
		r.Warn(w)
	}
}
