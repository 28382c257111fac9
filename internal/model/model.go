// Package model defines the core domain types shared across BoyStats.
// Field names on the wire follow the upstream match-v5 payload so cached
// datasets stay readable by existing dashboards.
package model

import "time"

// PlayerIdentity is a static roster entry (Riot ID "Name#TAG").
type PlayerIdentity struct {
	DisplayName string `json:"gameName"`
	RegionTag   string `json:"tagLine"`
}

// PlayerAccount is a roster entry resolved to its stable upstream id.
type PlayerAccount struct {
	DisplayName string `json:"name"`
	PlayerID    string `json:"puuid"`
}

// Challenges is the subset of the upstream challenge block we aggregate.
type Challenges struct {
	SoloKills    int `json:"soloKills"`
	HadOpenNexus int `json:"hadOpenNexus"` // upstream encodes as 0/1
}

// Participant is one player's line in a match plus roster annotations.
type Participant struct {
	PUUID          string `json:"puuid"`
	RiotIDGameName string `json:"riotIdGameName"`
	RiotIDTagline  string `json:"riotIdTagline,omitempty"`
	ChampionName   string `json:"championName"`
	ChampionID     int    `json:"championId,omitempty"`
	TeamID         int    `json:"teamId"`       // 100 blue, 200 red
	TeamPosition   string `json:"teamPosition"` // TOP, JUNGLE, MIDDLE, BOTTOM, UTILITY
	Win            bool   `json:"win"`

	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`

	TotalMinionsKilled             int `json:"totalMinionsKilled"`
	NeutralMinionsKilled           int `json:"neutralMinionsKilled"`
	GoldEarned                     int `json:"goldEarned"`
	TotalDamageDealtToChampions    int `json:"totalDamageDealtToChampions"`
	TotalDamageTaken               int `json:"totalDamageTaken"`
	VisionScore                    int `json:"visionScore"`
	TimeCCingOthers                int `json:"timeCCingOthers"`
	TotalHealsOnTeammates          int `json:"totalHealsOnTeammates"`
	TotalDamageShieldedOnTeammates int `json:"totalDamageShieldedOnTeammates"`

	DoubleKills          int  `json:"doubleKills"`
	TripleKills          int  `json:"tripleKills"`
	QuadraKills          int  `json:"quadraKills"`
	PentaKills           int  `json:"pentaKills"`
	FirstBloodKill       bool `json:"firstBloodKill"`
	LargestKillingSpree  int  `json:"largestKillingSpree"`
	GameEndedInSurrender bool `json:"gameEndedInSurrender"`

	Challenges *Challenges `json:"challenges,omitempty"`

	IsRosterMember    bool    `json:"isBoy"`
	RosterDisplayName *string `json:"boyName"` // nil unless IsRosterMember
}

// CS is lane plus jungle creep score.
func (p Participant) CS() int {
	return p.TotalMinionsKilled + p.NeutralMinionsKilled
}

// Objective is a per-team objective counter.
type Objective struct {
	First bool `json:"first"`
	Kills int  `json:"kills"`
}

// Ban is a champion ban during draft.
type Ban struct {
	ChampionID int `json:"championId"`
	PickTurn   int `json:"pickTurn"`
}

// Team is one side of a match.
type Team struct {
	TeamID     int                  `json:"teamId"`
	Win        bool                 `json:"win"`
	Bans       []Ban                `json:"bans,omitempty"`
	Objectives map[string]Objective `json:"objectives,omitempty"`
}

// MatchRecord is the projected match kept in a Dataset.
type MatchRecord struct {
	MatchID      string        `json:"matchId"`
	GameCreation int64         `json:"gameCreation"` // ms epoch
	GameDuration int64         `json:"gameDuration"` // seconds
	GameMode     string        `json:"gameMode"`
	QueueID      int           `json:"queueId"`
	Participants []Participant `json:"participants"`
	Teams        []Team        `json:"teams"`
}

// RosterParticipants returns the annotated roster members in the match.
func (m MatchRecord) RosterParticipants() []Participant {
	var out []Participant
	for _, p := range m.Participants {
		if p.IsRosterMember {
			out = append(out, p)
		}
	}
	return out
}

// Dataset is the unit of persistence and merge.
type Dataset struct {
	Matches   []MatchRecord     `json:"matches"`
	MatchIDs  []string          `json:"matchIds"` // set, serialized sorted
	Players   map[string]string `json:"players"`  // display name -> puuid
	Timestamp int64             `json:"timestamp"` // ms epoch of last commit
	UpdatedAt time.Time         `json:"updatedAt"`
	Version   int64             `json:"version"` // bumped on every commit
}

// Backup describes an archived dataset snapshot.
type Backup struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"` // "full-refresh", "restore", "manual"
	CreatedAt  time.Time `json:"createdAt"`
	MatchCount int       `json:"matchCount"`
	Version    int64     `json:"version"`
	Size       int       `json:"size"` // bytes
}

// RankedEntry is a player's standing in one ranked queue.
type RankedEntry struct {
	Tier   string `json:"tier"`
	Rank   string `json:"rank"`
	LP     int    `json:"lp"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

// PlayerProfile is a roster member with account and ranked data.
type PlayerProfile struct {
	Name          string       `json:"name"`
	Tag           string       `json:"tag"`
	PUUID         string       `json:"puuid,omitempty"`
	SummonerLevel int          `json:"summonerLevel,omitempty"`
	ProfileIconID int          `json:"profileIconId,omitempty"`
	SoloQueue     *RankedEntry `json:"soloQueue"`
	FlexQueue     *RankedEntry `json:"flexQueue"`
	Error         string       `json:"error,omitempty"`
}
