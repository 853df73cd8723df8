package strategy

// Strategy is the decision core shared by the live runner and the backtest
// replayer. Implementations must not read the clock, the network or globals.
type Strategy interface {
	Evaluate(snap Snapshot, p Params) Result
}

// ParamsSource resolves the current parameter set for a symbol. It is
// consulted on every evaluation so reloaded configuration takes effect.
type ParamsSource interface {
	Params(symbol string) Params
}

// StaticParams serves one parameter set for every symbol.
type StaticParams Params

// Params implements ParamsSource.
func (s StaticParams) Params(string) Params {
	return Params(s)
}

var _ Strategy = (*Pipeline)(nil)
