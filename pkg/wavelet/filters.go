package wavelet

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Wavelet is a two-channel filter bank. The four filters share one length
// so that analysis and synthesis line up with a fixed delay of DecLen()-2.
type Wavelet struct {
	Name string

	DecLo []float64
	DecHi []float64
	RecLo []float64
	RecHi []float64

	// Orthogonal is false for biorthogonal banks, where thresholding in
	// the coefficient domain no longer maps to the same error in the image.
	Orthogonal bool
}

// DecLen is the filter length.
func (w *Wavelet) DecLen() int { return len(w.DecLo) }

func (w *Wavelet) String() string { return w.Name }

// scaling filters, synthesis side
var (
	haarScaling = []float64{math.Sqrt2 / 2, math.Sqrt2 / 2}

	db2Scaling = []float64{
		(1 + math.Sqrt(3)) / (4 * math.Sqrt2),
		(3 + math.Sqrt(3)) / (4 * math.Sqrt2),
		(3 - math.Sqrt(3)) / (4 * math.Sqrt2),
		(1 - math.Sqrt(3)) / (4 * math.Sqrt2),
	}

	db3Scaling = []float64{
		0.3326705529509569,
		0.8068915093133388,
		0.4598775021193313,
		-0.13501102001039084,
		-0.08544127388224149,
		0.035226291882100656,
	}

	db4Scaling = []float64{
		0.23037781330885523,
		0.7148465705525415,
		0.6308807679295904,
		-0.02798376941698385,
		-0.18703481171888114,
		0.030841381835986965,
		0.032883011666982945,
		-0.010597401784997278,
	}

	sym4Scaling = []float64{
		0.0322231006040427,
		-0.012603967262037833,
		-0.09921954357684722,
		0.29785779560527736,
		0.8037387518059161,
		0.49761866763201545,
		-0.02963552764599851,
		-0.07576571478927333,
	}

	// bior2.2: linear spline synthesis, 5-tap analysis, both centred on
	// index 3 of a 6-tap frame.
	bior22Synthesis = []float64{0, 0, math.Sqrt2 / 4, math.Sqrt2 / 2, math.Sqrt2 / 4, 0}
	bior22Analysis  = []float64{0, -math.Sqrt2 / 8, math.Sqrt2 / 4, 3 * math.Sqrt2 / 4, math.Sqrt2 / 4, -math.Sqrt2 / 8}
)

var registry = map[string]*Wavelet{}

func init() {
	register(orthogonal("haar", haarScaling))
	register(orthogonal("db1", haarScaling))
	register(orthogonal("db2", db2Scaling))
	register(orthogonal("db3", db3Scaling))
	register(orthogonal("db4", db4Scaling))
	register(orthogonal("sym2", db2Scaling))
	register(orthogonal("sym3", db3Scaling))
	register(orthogonal("sym4", sym4Scaling))
	register(biorthogonal("bior1.1", haarScaling, haarScaling))
	register(biorthogonal("bior2.2", bior22Synthesis, bior22Analysis))
}

func register(w *Wavelet) { registry[w.Name] = w }

func orthogonal(name string, h []float64) *Wavelet {
	w := biorthogonal(name, h, h)
	w.Orthogonal = true
	return w
}

// biorthogonal builds the bank from the synthesis scaling filter h and the
// analysis scaling filter ha:
//
//	rec_lo[i] = h[i]                   dec_lo[i] = ha[F-1-i]
//	rec_hi[i] = (-1)^i ha[F-1-i]       dec_hi[i] = (-1)^(i+1) h[i]
func biorthogonal(name string, h, ha []float64) *Wavelet {
	f := len(h)
	w := &Wavelet{
		Name:  name,
		DecLo: make([]float64, f),
		DecHi: make([]float64, f),
		RecLo: make([]float64, f),
		RecHi: make([]float64, f),
	}
	for i := 0; i < f; i++ {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		w.RecLo[i] = h[i]
		w.DecLo[i] = ha[f-1-i]
		w.RecHi[i] = sign * ha[f-1-i]
		w.DecHi[i] = -sign * h[i]
	}
	return w
}

// Lookup returns the named wavelet.
func Lookup(name string) (*Wavelet, error) {
	w, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownWavelet, name, strings.Join(Names(), ", "))
	}
	return w, nil
}

// Names lists the registered wavelets.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
