package outbox

import (
	"strings"

	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

// Router resolves the destination topic for an aggregate type. Unknown
// aggregates always land on the default topic; routing never fails a
// publish.
type Router struct {
	routes       map[enums.AggregateType]string
	defaultTopic string
}

// NewRouter builds the routing table from topic configuration. Aggregates
// whose topic is left blank fall through to the default.
func NewRouter(cfg config.PubSubConfig) *Router {
	routes := map[enums.AggregateType]string{}
	add := func(aggregate enums.AggregateType, topic string) {
		topic = strings.TrimSpace(topic)
		if topic != "" {
			routes[aggregate] = topic
		}
	}
	add(enums.AggregateCompany, cfg.CompanyTopic)
	add(enums.AggregateUser, cfg.UserTopic)
	add(enums.AggregateContact, cfg.ContactTopic)
	add(enums.AggregateFiber, cfg.FiberTopic)
	add(enums.AggregateNotification, cfg.NotificationTopic)
	add(enums.AggregateAuth, cfg.SecurityTopic)
	return &Router{
		routes:       routes,
		defaultTopic: strings.TrimSpace(cfg.DefaultTopic),
	}
}

// Topic returns the destination topic for the aggregate type.
func (r *Router) Topic(aggregate enums.AggregateType) string {
	if r == nil {
		return ""
	}
	if topic, ok := r.routes[aggregate]; ok {
		return topic
	}
	return r.defaultTopic
}

// DefaultTopic returns the catch-all destination.
func (r *Router) DefaultTopic() string {
	if r == nil {
		return ""
	}
	return r.defaultTopic
}
