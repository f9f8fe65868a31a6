package sampling

import "fmt"

// Overrides is one source's opinion on the three sampling parameters.
// Each field is independently unset or set; a fully zero Overrides means
// "touch nothing".
type Overrides struct {
	Temperature Param[float64]
	TopP        Param[float64]
	TopK        Param[int]
}

// Resolve merges CLI-supplied overrides with config-file overrides, field by
// field, CLI winning whenever both are set. It is pure and is called exactly
// once at startup; the result is shared read-only by every request handler.
func Resolve(cli, file Overrides) Overrides {
	return Overrides{
		Temperature: cli.Temperature.Or(file.Temperature),
		TopP:        cli.TopP.Or(file.TopP),
		TopK:        cli.TopK.Or(file.TopK),
	}
}

// Validate checks every set field against its documented domain:
// temperature and top_p in [0, 1], top_k an integer >= 1.
// A descriptive error here aborts startup rather than letting an invalid
// value reach the upstream API.
func (o Overrides) Validate() error {
	if t, ok := o.Temperature.Get(); ok && (t < 0 || t > 1) {
		return fmt.Errorf("temperature %v out of range [0.0, 1.0]", t)
	}
	if p, ok := o.TopP.Get(); ok && (p < 0 || p > 1) {
		return fmt.Errorf("top_p %v out of range [0.0, 1.0]", p)
	}
	if k, ok := o.TopK.Get(); ok && k < 1 {
		return fmt.Errorf("top_k %d must be >= 1", k)
	}
	return nil
}

// IsZero reports whether no field is set.
func (o Overrides) IsZero() bool {
	return !o.Temperature.IsSet() && !o.TopP.IsSet() && !o.TopK.IsSet()
}

// String renders the overrides for startup logging, e.g.
// "temperature=0.7 top_p=unset top_k=40".
func (o Overrides) String() string {
	format := func(name string, v any, set bool) string {
		if !set {
			return name + "=unset"
		}
		return fmt.Sprintf("%s=%v", name, v)
	}

	t, tok := o.Temperature.Get()
	p, pok := o.TopP.Get()
	k, kok := o.TopK.Get()

	return format("temperature", t, tok) + " " +
		format("top_p", p, pok) + " " +
		format("top_k", k, kok)
}
