package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"boxoffice/backend/internal/meta"
	"boxoffice/backend/internal/models"
)

// Collection is a read-only view over the tickets of one event.
type Collection struct {
	tickets []models.Ticket
}

// NewCollection builds a collection, assigning positional indexes.
func NewCollection(tickets []models.Ticket) Collection {
	out := make([]models.Ticket, len(tickets))
	copy(out, tickets)
	for i := range out {
		out[i].Index = i
	}
	return Collection{tickets: out}
}

func (c Collection) All() []models.Ticket {
	out := make([]models.Ticket, len(c.tickets))
	copy(out, c.tickets)
	return out
}

func (c Collection) Count() int {
	return len(c.tickets)
}

func (c Collection) At(index int) (models.Ticket, bool) {
	if index < 0 || index >= len(c.tickets) {
		return models.Ticket{}, false
	}
	return c.tickets[index], true
}

// Envelope returns the persisted form of the collection.
func (c Collection) Envelope() models.Envelope {
	return models.Envelope{Schema: models.EnvelopeSchema, Tickets: c.All()}
}

// Collections loads and stores ticket envelopes in event meta.
type Collections struct {
	store  meta.Store
	logger *slog.Logger
}

func NewCollections(store meta.Store, logger *slog.Logger) *Collections {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collections{store: store, logger: logger}
}

// Load returns the event's tickets. A missing, malformed or unknown-schema
// envelope yields an empty collection.
func (c *Collections) Load(ctx context.Context, eventID int64) (Collection, error) {
	raw, err := c.store.Get(ctx, eventID, models.MetaKeyTickets)
	if err != nil {
		if errors.Is(err, meta.ErrNotFound) {
			return NewCollection(nil), nil
		}
		return Collection{}, fmt.Errorf("load tickets for event %d: %w", eventID, err)
	}
	env, ok := decodeEnvelope(raw)
	if !ok {
		c.logger.Warn("tickets_envelope_ignored", "event_id", eventID)
		return NewCollection(nil), nil
	}
	return NewCollection(env.Tickets), nil
}

// Save overwrites the event's envelope.
func (c *Collections) Save(ctx context.Context, eventID int64, env models.Envelope) error {
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, eventID, models.MetaKeyTickets, raw); err != nil {
		return fmt.Errorf("save tickets for event %d: %w", eventID, err)
	}
	c.logger.Info("tickets_saved", "event_id", eventID, "count", len(env.Tickets))
	return nil
}

// Update mutates the stored envelope under the store's per-key lock. fn is
// not called when the envelope is missing or has an unknown schema; it
// reports whether it changed anything. Update returns true when a write
// happened.
func (c *Collections) Update(ctx context.Context, eventID int64, fn func(env *models.Envelope) bool) (bool, error) {
	written := false
	err := c.store.Update(ctx, eventID, models.MetaKeyTickets, func(current json.RawMessage, found bool) (json.RawMessage, error) {
		if !found {
			return nil, nil
		}
		env, ok := decodeEnvelope(current)
		if !ok {
			return nil, nil
		}
		if !fn(&env) {
			return nil, nil
		}
		next, err := encodeEnvelope(env)
		if err != nil {
			return nil, err
		}
		written = true
		return next, nil
	})
	if err != nil {
		return false, fmt.Errorf("update tickets for event %d: %w", eventID, err)
	}
	return written, nil
}

func decodeEnvelope(raw json.RawMessage) (models.Envelope, bool) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.Envelope{}, false
	}
	// Envelopes written before the schema field existed have no "schema" key.
	var version struct {
		Schema *int `json:"schema"`
	}
	if err := json.Unmarshal(raw, &version); err != nil {
		return models.Envelope{}, false
	}
	if version.Schema == nil {
		env.Schema = models.EnvelopeSchema
	}
	if env.Schema != models.EnvelopeSchema {
		return models.Envelope{}, false
	}
	if env.Tickets == nil {
		env.Tickets = []models.Ticket{}
	}
	for i := range env.Tickets {
		env.Tickets[i].Index = i
	}
	return env, true
}

func encodeEnvelope(env models.Envelope) (json.RawMessage, error) {
	out := models.Envelope{Schema: models.EnvelopeSchema, Tickets: make([]models.Ticket, len(env.Tickets))}
	for i, ticket := range env.Tickets {
		ticket.Index = i
		if ticket.Capacity < 0 {
			ticket.Capacity = 0
		}
		out.Tickets[i] = ticket
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode tickets envelope: %w", err)
	}
	return raw, nil
}
