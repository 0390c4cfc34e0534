package interest

import "github.com/holiman/uint256"

const (
	// expTerms is the number of Maclaurin terms summed by Exp, the constant 1 included.
	expTerms = 10
	// ExtensionBonus is added to the max rate (percentage points) when pricing an extension.
	ExtensionBonus = 2
)

var (
	// Unit is 1.0 in 18-decimal fixed point.
	Unit = uint256.NewInt(1_000_000_000_000_000_000)

	regularFactor   = uint256.NewInt(1_500_000_000_000_000_000) // 1.5
	extensionFactor = uint256.NewInt(2_000_000_000_000_000_000) // 2.0
)

// Exp approximates e^x for a fixed-point x using a truncated Maclaurin series:
// term(i) = term(i-1) * x / (i * Unit), summed for i = 1..9 on top of Unit.
// Only accurate for small inputs (x <= 2 Unit); payouts depend on the exact
// truncation order, so do not rearrange the arithmetic.
func Exp(x *uint256.Int) *uint256.Int {
	sum := new(uint256.Int).Set(Unit)
	term := new(uint256.Int).Set(Unit)
	divisor := new(uint256.Int)
	for i := uint64(1); i < expTerms; i++ {
		divisor.Mul(uint256.NewInt(i), Unit)
		term.Mul(term, x)
		term.Div(term, divisor)
		sum.Add(sum, term)
	}
	return sum
}

// Period is the timing window of a filled loan, in unix seconds.
type Period struct {
	Now      uint64
	EndTime  uint64
	Duration uint64
}

// Elapsed returns the seconds since the loan was filled, i.e. since EndTime - Duration.
func (p Period) Elapsed() uint64 {
	var start uint64
	if p.EndTime > p.Duration {
		start = p.EndTime - p.Duration
	}
	if p.Now <= start {
		return 0
	}
	return p.Now - start
}

// Curve maps elapsed loan time onto an interest rate between MinRate and
// MaxRate, both plain percentage points.
type Curve struct {
	MinRate uint64
	MaxRate uint64
}

// Rate returns the rate in percentage points for the given period. With
// isExtension set the curve is evaluated against Duration+additionalTime,
// with a steeper factor and the max rate raised by ExtensionBonus.
func (c Curve) Rate(p Period, additionalTime uint64, isExtension bool) uint64 {
	elapsed := p.Elapsed()
	effective := p.Duration
	maxRate := c.MaxRate
	factor := regularFactor
	if isExtension {
		effective += additionalTime
		maxRate += ExtensionBonus
		factor = extensionFactor
	}
	if elapsed >= effective {
		return maxRate
	}
	if maxRate <= c.MinRate {
		return c.MinRate
	}

	ratio := new(uint256.Int).Mul(uint256.NewInt(elapsed), Unit)
	ratio.Div(ratio, uint256.NewInt(effective))

	exponent := new(uint256.Int).Mul(ratio, factor)
	exponent.Div(exponent, Unit)
	growth := Exp(exponent)
	growth.Sub(growth, Unit)

	span := Exp(factor)
	span.Sub(span, Unit)

	rate := new(uint256.Int).Mul(uint256.NewInt(maxRate-c.MinRate), growth)
	rate.Div(rate, span)
	return c.MinRate + rate.Uint64()
}
