package notifications

import (
	"testing"

	"tradeloom/database"
)

func TestShouldSend(t *testing.T) {
	wm := &WebhookManager{}

	tests := []struct {
		name    string
		hook    database.LearningWebhook
		payload WebhookPayload
		want    bool
	}{
		{
			name:    "no filters receives everything",
			hook:    database.LearningWebhook{},
			payload: WebhookPayload{EventType: EventLessonMined, Kind: "pattern", Edge: 0.01},
			want:    true,
		},
		{
			name:    "null filters receive everything",
			hook:    database.LearningWebhook{EventTypes: "null", Kinds: "null"},
			payload: WebhookPayload{EventType: EventOverrideMaterialized, Kind: "decision"},
			want:    true,
		},
		{
			name:    "event type match",
			hook:    database.LearningWebhook{EventTypes: `["lesson_mined","run_completed"]`},
			payload: WebhookPayload{EventType: EventLessonMined},
			want:    true,
		},
		{
			name:    "event type mismatch",
			hook:    database.LearningWebhook{EventTypes: `["lesson_mined"]`},
			payload: WebhookPayload{EventType: EventOverrideMaterialized},
			want:    false,
		},
		{
			name:    "kind match",
			hook:    database.LearningWebhook{Kinds: `["pattern","trade_outcome"]`},
			payload: WebhookPayload{EventType: EventLessonMined, Kind: "pattern"},
			want:    true,
		},
		{
			name:    "kind mismatch",
			hook:    database.LearningWebhook{Kinds: `["pattern"]`},
			payload: WebhookPayload{EventType: EventLessonMined, Kind: "decision"},
			want:    false,
		},
		{
			name:    "kindless run summary passes kind filter",
			hook:    database.LearningWebhook{Kinds: `["pattern"]`},
			payload: WebhookPayload{EventType: EventRunCompleted},
			want:    true,
		},
		{
			name:    "edge above threshold",
			hook:    database.LearningWebhook{MinEdge: floatPtr(0.05)},
			payload: WebhookPayload{EventType: EventLessonMined, Edge: 0.08},
			want:    true,
		},
		{
			name:    "edge below threshold",
			hook:    database.LearningWebhook{MinEdge: floatPtr(0.05)},
			payload: WebhookPayload{EventType: EventLessonMined, Edge: 0.04},
			want:    false,
		},
		{
			name:    "negative edge counts by magnitude",
			hook:    database.LearningWebhook{MinEdge: floatPtr(0.05)},
			payload: WebhookPayload{EventType: EventOverrideMaterialized, Edge: -0.10},
			want:    true,
		},
		{
			name:    "run summaries ignore the edge threshold",
			hook:    database.LearningWebhook{MinEdge: floatPtr(0.05)},
			payload: WebhookPayload{EventType: EventRunCompleted},
			want:    true,
		},
		{
			name: "all filters together",
			hook: database.LearningWebhook{
				EventTypes: `["lesson_mined"]`,
				Kinds:      `["pattern"]`,
				MinEdge:    floatPtr(0.05),
			},
			payload: WebhookPayload{EventType: EventLessonMined, Kind: "pattern", Edge: 0.9267},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wm.shouldSend(tt.hook, tt.payload); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
