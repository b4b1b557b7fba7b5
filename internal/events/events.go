// Package events publishes video lifecycle events to Amazon EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Source is the EventBridge source of every event.
const Source = "video-summarizer"

// Detail types.
const (
	TypeVideoUploaded   = "VideoUploaded"
	TypeVideoSummarized = "VideoSummarized"
	TypeVideoDeleted    = "VideoDeleted"
)

// VideoEvent is the event detail.
type VideoEvent struct {
	Type        string `json:"-"`
	VideoName   string `json:"videoName"`
	Persisted   bool   `json:"persisted,omitempty"`
	Chunks      int    `json:"chunks,omitempty"`
	Category    string `json:"category,omitempty"`
	Suitability string `json:"suitability,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Publisher sends video events.
type Publisher interface {
	Publish(ctx context.Context, e VideoEvent) error
}

// Nop discards events. Used when no event bus is configured.
type Nop struct{}

func (Nop) Publish(context.Context, VideoEvent) error { return nil }

// PutEventsAPI is the subset of the EventBridge client used here.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridge publishes to a named bus.
type EventBridge struct {
	client PutEventsAPI
	bus    string
	now    func() time.Time
}

// NewEventBridge returns a Publisher for bus.
func NewEventBridge(client PutEventsAPI, bus string) *EventBridge {
	return &EventBridge{client: client, bus: bus, now: time.Now}
}

func (p *EventBridge) Publish(ctx context.Context, e VideoEvent) error {
	if e.Timestamp == "" {
		e.Timestamp = p.now().UTC().Format(time.RFC3339)
	}
	detail, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{{
			EventBusName: aws.String(p.bus),
			Source:       aws.String(Source),
			DetailType:   aws.String(e.Type),
			Detail:       aws.String(string(detail)),
		}},
	})
	if err != nil {
		log.Error().Err(err).Str("video", e.VideoName).Str("eventType", e.Type).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("video", e.VideoName).Str("eventType", e.Type).Msg("Event published")
	return nil
}
