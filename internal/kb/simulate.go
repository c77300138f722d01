package kb

import (
	"context"
	"fmt"
)

// simulated passes reads through and swallows writes, handing out synthetic
// IDs so later steps can still reference what would have been created.
type simulated struct {
	Client
	next int
}

// Simulate wraps c so that no write reaches the remote.
func Simulate(c Client) Client {
	return &simulated{Client: c}
}

func (s *simulated) CreateEntity(_ context.Context, e *Entity) (string, error) {
	s.next++
	prefix := "Q"
	if e.Type == TypeProperty {
		prefix = "P"
	}
	return fmt.Sprintf("%s-sim-%d", prefix, s.next), nil
}

func (s *simulated) WriteStatements(context.Context, string, []Statement) error {
	return nil
}
