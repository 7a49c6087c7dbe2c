package factory

import "github.com/forgehq/forge/internal/team"

// hubSink adapts the event Hub to team.Sink, converting each team.Event to
// its wire Message before broadcasting.
type hubSink struct {
	hub *Hub
}

func (s hubSink) Emit(e team.Event) {
	s.hub.Broadcast(fromTeamEvent(e.RunID, e))
}
