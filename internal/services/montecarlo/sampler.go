package montecarlo

import "math"

// Uniform is a source of uniform variates in [0, 1). *rand.Rand satisfies it.
type Uniform interface {
	Float64() float64
}

// StandardNormal draws one N(0,1) variate with the Box–Muller transform.
// It consumes exactly two uniform draws. u is taken as 1-U so it lies in
// (0, 1] and log(u) is always finite.
func StandardNormal(rng Uniform) float64 {
	u := 1 - rng.Float64()
	v := rng.Float64()
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}

// SimulateGBM returns one terminal value of a Geometric Brownian Motion
// started at s0 with annualized drift mu and volatility sigma after t years.
//
//	S(t) = S0 · exp((mu − σ²/2)·t + σ·√t·Z)
func SimulateGBM(rng Uniform, s0, mu, sigma, t float64) float64 {
	z := StandardNormal(rng)
	return s0 * math.Exp((mu-0.5*sigma*sigma)*t+sigma*math.Sqrt(t)*z)
}
