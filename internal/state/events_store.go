package state

import (
	"encoding/json"
	"fmt"

	"github.com/elys-network/pegguard/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// SaveEvent persists a controller event. Re-saving an event ID is a no-op.
func SaveEvent(event types.Event) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	attributesJSON, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal event attributes: %w", err)
	}

	_, err = DB.Exec(`
		INSERT INTO controller_events (event_id, event_type, event_timestamp, attributes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING;`,
		event.ID, string(event.Type), event.Timestamp, attributesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}
	return nil
}

// GetRecentEvents returns the newest events, optionally restricted to the given types.
func GetRecentEvents(limit int, eventTypes []types.EventType) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	filter := make([]string, 0, len(eventTypes))
	for _, t := range eventTypes {
		filter = append(filter, string(t))
	}

	query := `
		SELECT event_id, event_type, event_timestamp, attributes
		FROM controller_events
		WHERE cardinality($1::TEXT[]) = 0 OR event_type = ANY($1)
		ORDER BY event_timestamp DESC
		LIMIT $2`

	rows, err := DB.Query(query, pq.Array(filter), clampLimit(limit))
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent events")
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			event          types.Event
			eventType      string
			attributesJSON []byte
		)
		if err := rows.Scan(&event.ID, &eventType, &event.Timestamp, &attributesJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan event row")
			continue
		}
		event.Type = types.EventType(eventType)
		if len(attributesJSON) > 0 {
			if err := json.Unmarshal(attributesJSON, &event.Attributes); err != nil {
				log.Error().Err(err).Str("eventId", event.ID).Msg("Failed to unmarshal event attributes")
				continue
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}
