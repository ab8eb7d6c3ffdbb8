package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration, loaded from the environment.
// All sweep thresholds are overridable so operators can tighten or relax
// reconciliation without a deploy.
type Config struct {
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	Port           int    `envconfig:"PORT" default:"5300"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Reveal animation windows. A pending flip/roll becomes eligible for
	// finalization once its deadline passes.
	CoinflipRevealDelay time.Duration `envconfig:"PVP_COINFLIP_REVEAL_DELAY" default:"5s"`
	DiceRevealDelay     time.Duration `envconfig:"PVP_DICE_REVEAL_DELAY" default:"2s"`

	// Sweeper tuning.
	SweepInterval       time.Duration `envconfig:"PVP_SWEEP_INTERVAL" default:"60s"`
	MaxWaitingAge       time.Duration `envconfig:"PVP_MAX_WAITING_AGE" default:"45m"`
	CoinflipGrace       time.Duration `envconfig:"PVP_COINFLIP_GRACE" default:"10s"`
	DiceGrace           time.Duration `envconfig:"PVP_DICE_GRACE" default:"2s"`
	DiceIdle            time.Duration `envconfig:"PVP_DICE_IDLE" default:"60s"`
	DiceUnstartedRefund time.Duration `envconfig:"PVP_DICE_UNSTARTED_REFUND" default:"15m"`

	// Idempotency replay window.
	IdempotencyTTL time.Duration `envconfig:"PVP_IDEMPOTENCY_TTL" default:"60s"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
