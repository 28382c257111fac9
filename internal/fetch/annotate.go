package fetch

import (
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/riot"
)

// RosterIDs inverts a display name -> puuid map.
func RosterIDs(accounts map[string]string) map[string]string {
	ids := make(map[string]string, len(accounts))
	for name, puuid := range accounts {
		if puuid != "" {
			ids[puuid] = name
		}
	}
	return ids
}

// AnnotateParticipants projects an upstream match to a MatchRecord and marks
// each participant's roster membership. rosterIDs maps puuid to display
// name. ok is false when no participant is a roster member, in which case
// the record must be discarded.
func AnnotateParticipants(m *riot.MatchResponse, rosterIDs map[string]string) (rec model.MatchRecord, ok bool) {
	participants := make([]model.Participant, len(m.Info.Participants))
	for i, p := range m.Info.Participants {
		p.IsRosterMember = false
		p.RosterDisplayName = nil
		if name, member := rosterIDs[p.PUUID]; member && p.PUUID != "" {
			p.IsRosterMember = true
			p.RosterDisplayName = &name
			ok = true
		}
		participants[i] = p
	}
	if !ok {
		return model.MatchRecord{}, false
	}

	id := m.Metadata.MatchID
	teams := make([]model.Team, len(m.Info.Teams))
	copy(teams, m.Info.Teams)

	return model.MatchRecord{
		MatchID:      id,
		GameCreation: m.Info.GameCreation,
		GameDuration: m.Info.GameDuration,
		GameMode:     m.Info.GameMode,
		QueueID:      m.Info.QueueID,
		Participants: participants,
		Teams:        teams,
	}, true
}
