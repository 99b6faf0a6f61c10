package engine

// Cluster selects one of the two independent runtime scopes. Bundle
// submission is mainnet-only; everything else works on both.
type Cluster string

const (
	ClusterMainnet Cluster = "mainnet"
	ClusterDevnet  Cluster = "devnet"
)

func (c Cluster) Valid() bool {
	return c == ClusterMainnet || c == ClusterDevnet
}

// Mode is the session operating mode.
type Mode string

const (
	ModeSnipe  Mode = "snipe"
	ModeVolume Mode = "volume"
)

// Phase selects pre- or post-migration venues for snipe mode.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// TargetMode selects how snipe targets are chosen.
type TargetMode string

const (
	TargetList TargetMode = "list"
	TargetAuto TargetMode = "auto"
)

// SignalSource identifies where a pending action came from.
type SignalSource string

const (
	SourceRaydium     SignalSource = "raydium"
	SourcePumpFun     SignalSource = "pumpfun"
	SourceVolumeTimer SignalSource = "volumeTimer"
)

// AutoSnipeConfig tunes the auto-discovery filter (momentum window plus
// safety gates).
type AutoSnipeConfig struct {
	WindowSec                      int     `json:"windowSec"`
	MinSignalsInWindow             int     `json:"minSignalsInWindow"`
	MinUniqueFeePayersInWindow     int     `json:"minUniqueFeePayersInWindow"`
	MaxTxAgeSec                    int     `json:"maxTxAgeSec"`
	RequireMintAuthorityDisabled   bool    `json:"requireMintAuthorityDisabled"`
	RequireFreezeAuthorityDisabled bool    `json:"requireFreezeAuthorityDisabled"`
	MaxTop1HolderPct               float64 `json:"maxTop1HolderPct"`
	MaxTop10HolderPct              float64 `json:"maxTop10HolderPct"`
	AllowToken2022                 bool    `json:"allowToken2022"`
}

// VolumeConfig tunes the timer-driven volume loop.
type VolumeConfig struct {
	Enabled     bool   `json:"enabled"`
	IntervalSec int    `json:"intervalSec"`
	TokenMint   string `json:"tokenMint"`
	SlippageBps int    `json:"slippageBps"`
	Roundtrip   bool   `json:"roundtrip"`
}

// BotConfig is the immutable per-run session configuration. A restart
// replaces the whole pointer; in-flight work keyed to the old pointer is
// discarded via the epoch guard.
type BotConfig struct {
	Cluster         Cluster         `json:"cluster"`
	Mode            Mode            `json:"mode"`
	PumpFunPhase    Phase           `json:"pumpFunPhase"`
	SnipeTargetMode TargetMode      `json:"snipeTargetMode"`
	AutoSnipe       AutoSnipeConfig `json:"autoSnipe"`
	MevEnabled      bool            `json:"mevEnabled"`
	BuyAmountSol    float64         `json:"buyAmountSol"`
	Volume          VolumeConfig    `json:"volume"`
	SnipeList       []string        `json:"snipeList"`

	// Exit-management knobs. Carried on the config so the signer UI can show
	// them; the core only stores them.
	LiquiditySol    float64 `json:"liquiditySol"`
	TakeProfitPct   float64 `json:"takeProfitPct"`
	StopLossPct     float64 `json:"stopLossPct"`
	AutoSellEnabled bool    `json:"autoSellEnabled"`
}
