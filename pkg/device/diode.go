package device

import (
	"math"

	"github.com/edp1096/toy-mcusim/internal/consts"
)

// Diode is a Shockley junction linearised around its operating point.
// Lead 0 is the anode, lead 1 the cathode.
type Diode struct {
	BaseDevice
	// Model parameters
	Is   float64 // Saturation current
	N    float64 // Ideality Factor / Emission Coefficient
	Bv   float64 // Breakdown voltage
	Gmin float64 // Minimum Conductance
	Eg   float64 // Energy Gap (eV)
	Xti  float64 // Saturation current temperature exponent

	// Internal states for the operating point
	vd   float64 // Voltage
	id   float64 // Current
	gd   float64 // Conductance at Operating Point
	temp float64

	saved [3]float64 // vd, id, gd at the start of the tick
}

func NewDiode(name string) *Diode {
	d := &Diode{BaseDevice: BaseDevice{Name: name}}
	d.setDefaultParameters()
	return d
}

func (d *Diode) GetType() string { return "D" }
func (d *Diode) LeadCount() int  { return 2 }
func (d *Diode) NonLinear() bool { return true }

func (d *Diode) Anode() Lead   { return LeadOf(d, 0) }
func (d *Diode) Cathode() Lead { return LeadOf(d, 1) }

func (d *Diode) setDefaultParameters() {
	d.Is = 1e-14
	d.N = 1.0
	d.Bv = 100.0
	d.Gmin = 1e-12
	d.Eg = 1.11 // Silicon bandgap
	d.Xti = 3.0
	d.temp = consts.ROOMTEMP
}

func (d *Diode) SetModelParameters(params map[string]float64) {
	if is, ok := params["is"]; ok {
		d.Is = is
	}
	if n, ok := params["n"]; ok {
		d.N = n
	}
	if bv, ok := params["bv"]; ok {
		d.Bv = bv
	}
	if eg, ok := params["eg"]; ok {
		d.Eg = eg
	}
	if xti, ok := params["xti"]; ok {
		d.Xti = xti
	}
}

func (d *Diode) thermalVoltage() float64 {
	return consts.BOLTZMANN * d.temp / consts.CHARGE
}

func (d *Diode) temperatureAdjustedIs() float64 {
	vt := d.thermalVoltage()

	// is(T2) = is(T1) * (T2/T1)^(XTI/N) * exp(-(Eg/(2*k))*(1/T2 - 1/T1))
	ratio := d.temp / consts.ROOMTEMP
	egfact := -d.Eg / (2 * vt) * (ratio - 1.0)
	return d.Is * math.Pow(ratio, d.Xti/d.N) * math.Exp(egfact)
}

func (d *Diode) calculateCurrent(vd float64) float64 {
	nvt := d.N * d.thermalVoltage()

	// Forward bias and weak reverse bias
	if vd > -3.0*nvt {
		arg := math.Min(vd/nvt, 40.0)
		return d.temperatureAdjustedIs() * (math.Exp(arg) - 1.0)
	}
	return -d.temperatureAdjustedIs()
}

func (d *Diode) calculateConductance(vd, id float64) float64 {
	nvt := d.N * d.thermalVoltage()
	if vd > -3.0*nvt {
		return (math.Abs(id)+d.temperatureAdjustedIs())/nvt + d.Gmin
	}
	// Strong reverse bias
	return d.Gmin
}

// limitStep keeps one Newton update from jumping far up the exponential.
func (d *Diode) limitStep(vnew, vold float64) float64 {
	nvt := d.N * d.thermalVoltage()
	vcrit := nvt * math.Log(nvt/(math.Sqrt2*d.temperatureAdjustedIs()))

	if vnew > vcrit && math.Abs(vnew-vold) > 2*nvt {
		if vold > 0 {
			arg := 1 + (vnew-vold)/nvt
			if arg > 0 {
				return vold + nvt*math.Log(arg)
			}
			return vcrit
		}
		return nvt * math.Log(vnew/nvt)
	}
	return vnew
}

func (d *Diode) Stamp(s Stamper, status *CircuitStatus) {
	if status.Temp > 0 {
		d.temp = status.Temp
	}
	n1, n2 := d.Nodes[0], d.Nodes[1]

	d.id = d.calculateCurrent(d.vd)
	d.gd = d.calculateConductance(d.vd, d.id)

	s.StampConductance(n1, n2, d.gd)
	s.StampCurrentSource(n1, n2, d.id-d.gd*d.vd)
}

func (d *Diode) UpdateOperatingPoint() bool {
	vnew := d.Volts[0] - d.Volts[1]
	d.vd = d.limitStep(vnew, d.vd)
	return d.vd != vnew
}

func (d *Diode) SaveOperatingPoint()    { d.saved = [3]float64{d.vd, d.id, d.gd} }
func (d *Diode) RestoreOperatingPoint() { d.vd, d.id, d.gd = d.saved[0], d.saved[1], d.saved[2] }

func (d *Diode) Step(s Stamper, status *CircuitStatus) {
	d.vd = d.Volts[0] - d.Volts[1]
	d.Current = d.calculateCurrent(d.vd)
}

func (d *Diode) Reset() {
	d.BaseDevice.Reset()
	d.vd, d.id, d.gd = 0, 0, 0
	d.saved = [3]float64{}
}
