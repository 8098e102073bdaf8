/*
Package kalman estimates position and velocity from irregular position fixes.

Horizontal motion is a constant-velocity model over a local east/north frame,
x = [e, n, ve, vn], with white-noise acceleration driving the uncertainty.
Altitude and bearing ride along as independent scalar filters, updated only
when a fix carries them.

A Filter is not safe for concurrent use. The fusion loop owns it.
*/
package kalman

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/geo/tangent"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"gonum.org/v1/gonum/mat"
)

// MinAccuracy is the floor applied to measurement sigmas, in meters.
const MinAccuracy = 1.0

var ErrSingular = errors.New("singular innovation covariance")

// Config holds the filter tunables.
type Config struct {
	// ProcessNoise is the one-sigma acceleration, m/s^2.
	ProcessNoise float64
	// InitialSpeedSigma is the velocity prior given to the first fix, m/s.
	InitialSpeedSigma float64
	// AltitudeNoise is q_alt in P_alt += q_alt * dt^2, m^2/s^2.
	AltitudeNoise float64
	// BearingNoise is q_bear in P_bear += q_bear * dt, deg^2/s.
	BearingNoise float64
	// BearingAccuracy is the one-sigma error assumed for a reported bearing, degrees.
	BearingAccuracy float64
}

func DefaultConfig() Config {
	return Config{
		ProcessNoise:      1.0,
		InitialSpeedSigma: 50, // 100 would blur a 10 m first fix to ~14 m one 100 ms tick later
		AltitudeNoise:     1.0,
		BearingNoise:      5,
		BearingAccuracy:   10,
	}
}

type Filter struct {
	cfg Config

	// t is the filter time in monotonic milliseconds.
	t int64

	initialized bool
	origin      tangent.Origin
	x           *mat.VecDense
	p           *mat.Dense

	alt     altitudeState
	bearing bearingState
}

type altitudeState struct {
	valid bool
	alt   float64
	vz    float64
	p     float64
	lastT int64
}

type bearingState struct {
	valid bool
	deg   float64
	p     float64
}

// observation is H: we measure position, not velocity.
var observation = mat.NewDense(2, 4, []float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
})

var identity4 = mat.NewDiagDense(4, []float64{1, 1, 1, 1})

// New returns a filter with no fix, at time t0.
func New(cfg Config, t0 int64) *Filter {
	f := &Filter{cfg: cfg}
	f.Reset(t0)
	return f
}

// Reset forgets all state. The next Update re-initializes the origin.
func (f *Filter) Reset(t0 int64) {
	f.t = t0
	f.initialized = false
	f.origin = tangent.Origin{}
	f.x = mat.NewVecDense(4, nil)
	f.p = mat.NewDense(4, 4, nil)
	f.alt = altitudeState{}
	f.bearing = bearingState{}
}

func (f *Filter) Time() int64 {
	return f.t
}

func (f *Filter) Initialized() bool {
	return f.initialized
}

// Origin is only meaningful once Initialized.
func (f *Filter) Origin() tangent.Origin {
	return f.origin
}

// AdvanceTo predicts forward to t. Filter time never moves backwards;
// a t behind the filter is a no-op.
func (f *Filter) AdvanceTo(t int64) {
	if t <= f.t {
		return
	}
	f.Predict(time.Duration(t-f.t) * time.Millisecond)
	f.t = t
}

// Predict runs the time update over dt without touching the filter time.
// dt <= 0 is a no-op.
func (f *Filter) Predict(dt time.Duration) {
	if dt <= 0 || !f.initialized {
		return
	}
	s := dt.Seconds()

	F := transition(s)
	var x mat.VecDense
	x.MulVec(F, f.x)
	f.x = &x

	var p mat.Dense
	p.Product(F, f.p, F.T())
	p.Add(&p, processNoise(s, f.cfg.ProcessNoise))
	f.p = &p
	f.symmetrize()

	if f.alt.valid {
		f.alt.alt += f.alt.vz * s
		f.alt.p += f.cfg.AltitudeNoise * s * s
	}
	if f.bearing.valid {
		f.bearing.p += f.cfg.BearingNoise * s
	}
}

// Update folds a measurement in at the current filter time.
// The caller is expected to have advanced the filter to m.T first.
func (f *Filter) Update(m fix.Measurement) error {
	sigma := m.Accuracy
	if !(sigma >= MinAccuracy) {
		sigma = MinAccuracy
	}
	if !f.initialized {
		f.origin = tangent.NewOrigin(m.Point())
		f.x = mat.NewVecDense(4, nil)
		v := f.cfg.InitialSpeedSigma * f.cfg.InitialSpeedSigma
		f.p = mat.NewDense(4, 4, []float64{
			sigma * sigma, 0, 0, 0,
			0, sigma * sigma, 0, 0,
			0, 0, v, 0,
			0, 0, 0, v,
		})
		f.initialized = true
	} else if err := f.updatePosition(m, sigma); err != nil {
		return err
	}
	if m.Alt != nil {
		f.updateAltitude(m, sigma)
	}
	if m.Bearing != nil {
		f.updateBearing(*m.Bearing)
	}
	return nil
}

func (f *Filter) updatePosition(m fix.Measurement, sigma float64) error {
	e, n := f.origin.Project(m.Point())
	z := mat.NewVecDense(2, []float64{e, n})

	// y = z - Hx
	var hx, y mat.VecDense
	hx.MulVec(observation, f.x)
	y.SubVec(z, &hx)

	// S = HPH' + R
	var s mat.Dense
	s.Product(observation, f.p, observation.T())
	r := sigma * sigma
	s.Set(0, 0, s.At(0, 0)+r)
	s.Set(1, 1, s.At(1, 1)+r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}

	// K = PH'S^-1
	var k mat.Dense
	k.Product(f.p, observation.T(), &sInv)

	var ky, x mat.VecDense
	ky.MulVec(&k, &y)
	x.AddVec(f.x, &ky)

	// P = (I - KH)P
	var kh, ikh, p mat.Dense
	kh.Mul(&k, observation)
	ikh.Sub(identity4, &kh)
	p.Mul(&ikh, f.p)

	f.x = &x
	f.p = &p
	f.symmetrize()
	return nil
}

func (f *Filter) updateAltitude(m fix.Measurement, horizontal float64) {
	sigma := m.VerticalAccuracy
	if !(sigma >= MinAccuracy) {
		sigma = horizontal
	}
	r := sigma * sigma
	z := *m.Alt
	if !f.alt.valid {
		f.alt = altitudeState{valid: true, alt: z, p: r, lastT: m.T}
		return
	}
	k := f.alt.p / (f.alt.p + r)
	y := z - f.alt.alt
	f.alt.alt += k * y
	// Vertical speed follows with the alpha-beta gain that pairs with k.
	if dt := float64(m.T-f.alt.lastT) / 1000; dt > 0 {
		beta := k * k / (2 - k)
		f.alt.vz += beta * y / dt
	}
	f.alt.p *= 1 - k
	f.alt.lastT = m.T
}

func (f *Filter) updateBearing(z float64) {
	r := f.cfg.BearingAccuracy * f.cfg.BearingAccuracy
	if !f.bearing.valid {
		f.bearing = bearingState{valid: true, deg: wrap360(z), p: r}
		return
	}
	// Unwrap against the current bearing so 350 -> 10 is +20, not -340.
	d := math.Remainder(z-f.bearing.deg, 360)
	k := f.bearing.p / (f.bearing.p + r)
	f.bearing.deg = wrap360(f.bearing.deg + k*d)
	f.bearing.p *= 1 - k
}

// symmetrize pins P back onto the symmetric PSD cone against rounding.
func (f *Filter) symmetrize() {
	for i := 0; i < 4; i++ {
		if f.p.At(i, i) < 0 {
			f.p.Set(i, i, 0)
		}
		for j := i + 1; j < 4; j++ {
			v := (f.p.At(i, j) + f.p.At(j, i)) / 2
			f.p.Set(i, j, v)
			f.p.Set(j, i, v)
		}
	}
}

// Estimate is the current state as a FUSED estimate at the filter time.
func (f *Filter) Estimate() fix.Estimate {
	e := fix.Estimate{
		Source:             fix.SourceFused,
		T:                  f.t,
		HorizontalAccuracy: math.Inf(1),
	}
	if !f.initialized {
		return e
	}
	pt := f.origin.Unproject(f.x.AtVec(0), f.x.AtVec(1))
	e.Lat = pt.Lat()
	e.Lon = pt.Lon()
	e.Speed = math.Hypot(f.x.AtVec(2), f.x.AtVec(3))
	e.HorizontalAccuracy = math.Sqrt(math.Max(f.p.At(0, 0), f.p.At(1, 1)))
	if f.alt.valid {
		alt := f.alt.alt
		e.Alt = &alt
	}
	if f.bearing.valid {
		e.Bearing = f.bearing.deg
	}
	return e
}

// State returns [e, n, ve, vn] in the local frame.
func (f *Filter) State() (east, north, ve, vn float64) {
	return f.x.AtVec(0), f.x.AtVec(1), f.x.AtVec(2), f.x.AtVec(3)
}

// Covariance returns a copy of P.
func (f *Filter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(f.p)
}

// transition is F(dt) for constant velocity.
func transition(dt float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// processNoise is Q(dt) for white-noise acceleration with sigma sigmaA.
func processNoise(dt, sigmaA float64) *mat.Dense {
	q := sigmaA * sigmaA
	q4 := q * math.Pow(dt, 4) / 4
	q3 := q * math.Pow(dt, 3) / 2
	q2 := q * dt * dt
	return mat.NewDense(4, 4, []float64{
		q4, 0, q3, 0,
		0, q4, 0, q3,
		q3, 0, q2, 0,
		0, q3, 0, q2,
	})
}

// wrap360 wraps degrees into [0, 360).
func wrap360(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}
