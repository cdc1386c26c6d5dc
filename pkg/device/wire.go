package device

// Wire merges its two leads into one node; it never reaches the matrix.
type Wire struct{ BaseDevice }

func NewWire(name string) *Wire {
	return &Wire{BaseDevice{Name: name}}
}

func (w *Wire) GetType() string                        { return "W" }
func (w *Wire) LeadCount() int                         { return 2 }
func (w *Wire) IsWire() bool                           { return true }
func (w *Wire) LeadsAreConnected(i, j int) bool        { return true }
func (w *Wire) Stamp(s Stamper, status *CircuitStatus) {}
func (w *Wire) GetVoltageDelta() float64               { return 0 }
func (w *Wire) LeadA() Lead                            { return LeadOf(w, 0) }
func (w *Wire) LeadB() Lead                            { return LeadOf(w, 1) }

// Ground ties its lead to the reference node.
type Ground struct{ BaseDevice }

func NewGround(name string) *Ground {
	return &Ground{BaseDevice{Name: name}}
}

func (g *Ground) GetType() string                        { return "GND" }
func (g *Ground) LeadCount() int                         { return 1 }
func (g *Ground) LeadIsGround(i int) bool                { return true }
func (g *Ground) Stamp(s Stamper, status *CircuitStatus) {}
func (g *Ground) Lead() Lead                             { return LeadOf(g, 0) }
