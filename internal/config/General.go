package config

import (
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/utils"
	"github.com/rs/zerolog/log"
)

// ModePaper is the only mode the binary runs in: the controller trades against an in-process ledger.
const ModePaper = "paper"

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode must be "paper"; anything else halts the binary.
	Mode string

	// OwnerAddress may change the controller configuration.
	OwnerAddress types.Address
	// StabilityModuleAddress may request tokens from the controller.
	StabilityModuleAddress types.Address
	// KeeperAddress is the caller identity the keeper submits proposals with.
	KeeperAddress types.Address
	// RewardRecipient receives harvested gauge rewards.
	RewardRecipient types.Address
	// ControllerAddress is the ledger account holding the controller's funds.
	ControllerAddress types.Address
	// Harvesters may call HarvestReward besides the owner. Always includes KeeperAddress.
	Harvesters []types.Address

	// KeeperSchedule is the cron spec of keeper cycles.
	KeeperSchedule string
	// ObserveSchedule is the cron spec of TWAP observations.
	ObserveSchedule string
	// RunOnStart runs one keeper cycle immediately at startup.
	RunOnStart bool

	// ScenarioFile is the YAML paper-market seed.
	ScenarioFile string

	// LogLevel and LogFile configure the logger.
	LogLevel string
	LogFile  string

	// BandParameters are the defaults overridden by FLOOR_PRICE, CAP_PRICE,
	// HARVEST_COOLDOWN, TWAP_WINDOW, TWAP_MAX_AGE and KEEPER_MAX_ATTEMPTS.
	BandParameters types.BandParameters
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Addresses of the owner, stability module and keeper are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode = getEnvOrDefault("PEGGUARD_MODE", "")

	owner, err := getEnv("OWNER_ADDRESS")
	if err != nil {
		return err
	}
	OwnerAddress = types.Address(owner)

	module, err := getEnv("STABILITY_MODULE_ADDRESS")
	if err != nil {
		return err
	}
	StabilityModuleAddress = types.Address(module)

	keeper, err := getEnv("KEEPER_ADDRESS")
	if err != nil {
		return err
	}
	KeeperAddress = types.Address(keeper)

	RewardRecipient = types.Address(getEnvOrDefault("REWARD_RECIPIENT", owner))
	ControllerAddress = types.Address(getEnvOrDefault("CONTROLLER_ADDRESS", "pegguard"))
	Harvesters = nil
	for _, h := range getEnvAsList("HARVESTER_ADDRESSES") {
		Harvesters = append(Harvesters, types.Address(h))
	}
	// The keeper submits harvest proposals under its own address.
	if !slices.Contains(Harvesters, KeeperAddress) {
		Harvesters = append(Harvesters, KeeperAddress)
	}

	KeeperSchedule = getEnvOrDefault("KEEPER_SCHEDULE", "@every 1m")
	ObserveSchedule = getEnvOrDefault("OBSERVE_SCHEDULE", "@every 10s")
	RunOnStart, err = getEnvAsBool("RUN_ON_START", true)
	if err != nil {
		return err
	}
	ScenarioFile = getEnvOrDefault("SCENARIO_FILE", "scenario.yaml")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	BandParameters, err = loadBandParameters(DefaultBandParameters)
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("OwnerAddress", string(OwnerAddress)).
		Str("KeeperAddress", string(KeeperAddress)).
		Str("FloorPrice", BandParameters.FloorPrice.String()).
		Str("CapPrice", BandParameters.CapPrice.String()).
		Msg("Configuration loaded successfully.")

	return nil
}

// loadBandParameters applies the environment overrides to base.
func loadBandParameters(base types.BandParameters) (types.BandParameters, error) {
	params := base
	var err error
	if params.FloorPrice, err = getEnvAsPrice("FLOOR_PRICE", base.FloorPrice); err != nil {
		return params, err
	}
	if params.CapPrice, err = getEnvAsPrice("CAP_PRICE", base.CapPrice); err != nil {
		return params, err
	}
	if params.HarvestCooldown, err = getEnvAsDuration("HARVEST_COOLDOWN", base.HarvestCooldown); err != nil {
		return params, err
	}
	if params.TwapWindow, err = getEnvAsDuration("TWAP_WINDOW", base.TwapWindow); err != nil {
		return params, err
	}
	if params.TwapMaxAge, err = getEnvAsDuration("TWAP_MAX_AGE", base.TwapMaxAge); err != nil {
		return params, err
	}
	attempts, err := getEnvAsUint64("KEEPER_MAX_ATTEMPTS", uint64(base.KeeperMaxAttempts))
	if err != nil {
		return params, err
	}
	params.KeeperMaxAttempts = int(attempts)

	if err := params.Band().Validate(); err != nil {
		return params, err
	}
	if params.TwapWindow <= 0 {
		return params, errors.New("environment variable TWAP_WINDOW must be positive")
	}
	return params, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if invalid.
func getEnvAsUint64(key string, def uint64) (uint64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool. Returns error if invalid.
func getEnvAsBool(key string, def bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable such as "24h" as a duration.
func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value < 0 {
		return 0, errors.New("environment variable " + key + " must be a valid non-negative duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsPrice retrieves a human decimal price such as "0.999".
func getEnvAsPrice(key string, def sdkmath.Int) (sdkmath.Int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := utils.ParsePrice(valueStr)
	if err != nil {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a decimal price, got: " + valueStr + " (" + err.Error() + ")")
	}
	return value, nil
}
