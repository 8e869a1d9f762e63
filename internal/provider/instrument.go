package provider

import "strings"

// Class is the coarse instrument family the symbol spelling implies.
type Class string

const (
	ClassFX      Class = "fx"
	ClassCFD     Class = "cfd"
	ClassCrypto  Class = "crypto"
	ClassFutures Class = "futures"
	ClassUnknown Class = "unknown"
)

// Instrument is a classification result mapped to provider names.
type Instrument struct {
	Symbol            string
	Class             Class
	MarketProvider    string
	ExecutionProvider string
}

var fxPairs = map[string]struct{}{
	"EURUSD": {}, "GBPUSD": {}, "USDJPY": {}, "USDCHF": {},
	"AUDUSD": {}, "USDCAD": {}, "NZDUSD": {}, "EURGBP": {},
	"EURJPY": {}, "GBPJPY": {},
}

var cryptoQuotes = []string{"USDT", "USDC", "BUSD", "TUSD", "FDUSD"}

var futuresRoots = map[string]struct{}{
	"ES": {}, "NQ": {}, "YM": {}, "RTY": {},
	"CL": {}, "NG": {}, "GC": {}, "SI": {}, "HG": {},
	"ZB": {}, "ZN": {}, "ZF": {}, "6E": {}, "6J": {},
}

// Classify maps a symbol spelling to an instrument family and the
// provider pair that serves it. Crypto symbols stream from binance; every
// other family runs on the simulator in this build. Execution always goes
// through the sim venue.
func Classify(symbol string) Instrument {
	inst := Instrument{
		Symbol:            symbol,
		Class:             ClassUnknown,
		MarketProvider:    "sim",
		ExecutionProvider: "sim",
	}
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return inst
	}

	if _, ok := fxPairs[s]; ok {
		inst.Class = ClassFX
		return inst
	}
	if strings.HasSuffix(s, ".CFD") || strings.HasSuffix(s, "-CFD") {
		inst.Class = ClassCFD
		return inst
	}
	for _, quote := range cryptoQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			inst.Class = ClassCrypto
			inst.MarketProvider = "binance"
			return inst
		}
	}
	if _, ok := futuresRoot(s); ok {
		inst.Class = ClassFutures
		return inst
	}
	return inst
}

// futuresRoot recognizes bare roots (ES) and dated contracts (ESZ5,
// ESH2026).
func futuresRoot(s string) (string, bool) {
	if _, ok := futuresRoots[s]; ok {
		return s, true
	}
	for root := range futuresRoots {
		if !strings.HasPrefix(s, root) {
			continue
		}
		rest := s[len(root):]
		if len(rest) >= 2 && isMonthCode(rest[0]) && allDigits(rest[1:]) {
			return root, true
		}
	}
	return "", false
}

func isMonthCode(c byte) bool {
	switch c {
	case 'F', 'G', 'H', 'J', 'K', 'M', 'N', 'Q', 'U', 'V', 'X', 'Z':
		return true
	}
	return false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
