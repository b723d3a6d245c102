package outbox

import (
	"testing"

	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

func testPubSubConfig() config.PubSubConfig {
	return config.PubSubConfig{
		CompanyTopic:      "company-events",
		UserTopic:         "user-events",
		ContactTopic:      "contact-events",
		FiberTopic:        "fiber-events",
		NotificationTopic: "notification-events",
		SecurityTopic:     "security-events",
		DefaultTopic:      "default-events",
	}
}

func TestRouterRoutesKnownAggregates(t *testing.T) {
	router := NewRouter(testPubSubConfig())

	cases := []struct {
		aggregate enums.AggregateType
		want      string
	}{
		{enums.AggregateCompany, "company-events"},
		{enums.AggregateUser, "user-events"},
		{enums.AggregateContact, "contact-events"},
		{enums.AggregateFiber, "fiber-events"},
		{enums.AggregateNotification, "notification-events"},
		{enums.AggregateAuth, "security-events"},
	}
	for _, tc := range cases {
		if got := router.Topic(tc.aggregate); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.aggregate, got, tc.want)
		}
	}
}

func TestRouterFallsBackToDefault(t *testing.T) {
	router := NewRouter(testPubSubConfig())
	if got := router.Topic(enums.AggregateType("LOOM")); got != "default-events" {
		t.Fatalf("unknown aggregate: got %q, want default-events", got)
	}
}

func TestRouterBlankTopicFallsBackToDefault(t *testing.T) {
	cfg := testPubSubConfig()
	cfg.FiberTopic = "   "
	router := NewRouter(cfg)
	if got := router.Topic(enums.AggregateFiber); got != "default-events" {
		t.Fatalf("blank topic: got %q, want default-events", got)
	}
}
