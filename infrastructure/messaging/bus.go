package messaging

import (
	"context"
	"strings"
)

// EventHandler is a function that processes event data
type EventHandler func(ctx context.Context, eventData []byte) error

// Bus is a topic-routed event bus. Each consumer gets its own queue bound to
// the given routing keys, so messages reach a consumer in publish order.
type Bus interface {
	Publish(ctx context.Context, routingKey string, eventData []byte) error
	Subscribe(consumer string, keys []string, handler EventHandler) error
}

// MatchTopic reports whether key matches an AMQP topic pattern, where "*"
// stands for one word and "#" for zero or more.
func MatchTopic(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(k); i++ {
				if matchWords(p[1:], k[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(k) == 0 {
				return false
			}
		default:
			if len(k) == 0 || p[0] != k[0] {
				return false
			}
		}
		p, k = p[1:], k[1:]
	}
	return len(k) == 0
}
