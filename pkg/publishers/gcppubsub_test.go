package publishers

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/samvad-hq/softbase-go/internal/domain"
)

func TestPubSubPublisherPublishes(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer client.Close()
	if _, err := client.CreateTopic(ctx, "records"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	pub, err := newPubSubPublisher(ctx, PublisherConfig{
		ID:     "gcp",
		Type:   TypePubSub,
		PubSub: &PubSubPublisherConfig{ProjectID: "test-project", Topic: "records"},
	}, nil)
	if err != nil {
		t.Fatalf("newPubSubPublisher: %v", err)
	}

	evt := NewRecordEvent(EventRecordUpdated, domain.Record{Key: "k", Value: json.RawMessage(`"v"`)})
	if err := pub.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := NewFanout([]Publisher{pub}).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	msgs := server.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if got := msgs[0].Attributes["event_type"]; got != EventRecordUpdated {
		t.Fatalf("event_type attribute = %q", got)
	}
	var body Event
	if err := json.Unmarshal(msgs[0].Data, &body); err != nil || body.Key != "k" {
		t.Fatalf("unexpected payload %s (err=%v)", msgs[0].Data, err)
	}
}
