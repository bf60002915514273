package types

import "time"

// EventType names a controller event.
type EventType string

const (
	EventSpotOracleUpdated      EventType = "SPOT_ORACLE_UPDATED"
	EventTwapOracleUpdated      EventType = "TWAP_ORACLE_UPDATED"
	EventFloorPriceUpdated      EventType = "FLOOR_PRICE_UPDATED"
	EventCapPriceUpdated        EventType = "CAP_PRICE_UPDATED"
	EventStabilityModuleUpdated EventType = "STABILITY_MODULE_UPDATED"
	EventPausedUpdated          EventType = "PAUSED_UPDATED"
	EventHarvesterUpdated       EventType = "HARVESTER_UPDATED"
	EventRewardRecipientUpdated EventType = "REWARD_RECIPIENT_UPDATED"
	EventRebalanced             EventType = "REBALANCED"
	EventRewardHarvested        EventType = "REWARD_HARVESTED"
	EventTokensProvided         EventType = "TOKENS_PROVIDED"
)

// Event is emitted by the controller whenever configuration or holdings change.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}
