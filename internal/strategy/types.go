package strategy

// Rule is one ordered playbook entry. A rule fires when the named feature
// crosses its threshold in the signed direction: a buy rule fires at
// feature >= threshold, a sell rule at feature <= threshold.
type Rule struct {
	Name      string  `yaml:"name"`
	Feature   string  `yaml:"feature"`
	Threshold float64 `yaml:"threshold"`
	Direction string  `yaml:"direction"` // buy or sell
	Tag       string  `yaml:"tag"`
}

// Config drives the orchestrator pipeline.
type Config struct {
	Symbols []string `yaml:"symbols"`

	// Regime filter bounds. Zero max values disable the bound.
	MinVolume float64 `yaml:"min_volume"`
	MaxVolume float64 `yaml:"max_volume"`
	MaxRange  float64 `yaml:"max_range"`

	// Confluence vetoes.
	VetoVolatility float64 `yaml:"veto_volatility"`
	VetoSpoof      bool    `yaml:"veto_spoof"`

	// Scoring weights.
	ImbalanceWeight float64 `yaml:"imbalance_weight"`
	DeltaWeight     float64 `yaml:"delta_weight"`
	TagBonus        float64 `yaml:"tag_bonus"`

	Playbook []Rule `yaml:"playbook"`
}

func (c *Config) defaults() {
	if c.ImbalanceWeight <= 0 {
		c.ImbalanceWeight = 1
	}
	if c.DeltaWeight <= 0 {
		c.DeltaWeight = 0.001
	}
	if c.TagBonus <= 0 {
		c.TagBonus = 0.25
	}
	if c.VetoVolatility <= 0 {
		c.VetoVolatility = 5
	}
	if len(c.Playbook) == 0 {
		c.Playbook = DefaultPlaybook()
	}
}

// DefaultPlaybook is the illustrative rule set used when none is
// configured: an imbalance breakout each way and a delta continuation.
func DefaultPlaybook() []Rule {
	return []Rule{
		{Name: "imbalance_long", Feature: "imbalance", Threshold: 0.6, Direction: "buy", Tag: "imbalance"},
		{Name: "imbalance_short", Feature: "imbalance", Threshold: -0.6, Direction: "sell", Tag: "imbalance"},
		{Name: "delta_follow_long", Feature: "delta", Threshold: 50, Direction: "buy", Tag: "delta"},
		{Name: "delta_follow_short", Feature: "delta", Threshold: -50, Direction: "sell", Tag: "delta"},
	}
}
