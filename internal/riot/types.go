package riot

import "github.com/vibetom/boystats/internal/model"

// AccountResponse from account-v1.
type AccountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// MatchResponse from match-v5.
type MatchResponse struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"` // puuids
}

type MatchInfo struct {
	GameCreation int64               `json:"gameCreation"`
	GameDuration int64               `json:"gameDuration"`
	GameMode     string              `json:"gameMode"`
	GameVersion  string              `json:"gameVersion"`
	QueueID      int                 `json:"queueId"`
	Participants []model.Participant `json:"participants"`
	Teams        []model.Team        `json:"teams"`
}

// SummonerResponse from summoner-v4.
type SummonerResponse struct {
	ID            string `json:"id"`
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	SummonerLevel int    `json:"summonerLevel"`
}

// LeagueEntry from league-v4.
type LeagueEntry struct {
	QueueType    string `json:"queueType"` // RANKED_SOLO_5x5, RANKED_FLEX_SR
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

func (e LeagueEntry) toModel() *model.RankedEntry {
	return &model.RankedEntry{
		Tier:   e.Tier,
		Rank:   e.Rank,
		LP:     e.LeaguePoints,
		Wins:   e.Wins,
		Losses: e.Losses,
	}
}
