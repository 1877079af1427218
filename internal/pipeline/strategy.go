package pipeline

import "fmt"

// Strategy selects how minified artifacts are produced.
type Strategy string

const (
	// StrategyFallback minifies the written primary artifact with the
	// standalone minifier. It is the default: the integrated path has been
	// seen to produce broken global builds.
	StrategyFallback Strategy = "fallback"
	// StrategyIntegrated runs the bundler a second time with a minify stage.
	StrategyIntegrated Strategy = "integrated"
)

// StrategyFor maps the trust_minify setting onto a strategy.
func StrategyFor(trustMinify bool) Strategy {
	if trustMinify {
		return StrategyIntegrated
	}
	return StrategyFallback
}

// ParseStrategy validates a strategy name. Empty selects the fallback.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyFallback:
		return StrategyFallback, nil
	case StrategyIntegrated:
		return StrategyIntegrated, nil
	default:
		return "", fmt.Errorf("unknown minify strategy %q (want %s or %s)", s, StrategyFallback, StrategyIntegrated)
	}
}
