package stats

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vibetom/boystats/internal/model"
)

func boy(name string, team int, win bool, k, d, a int) model.Participant {
	n := name
	return model.Participant{
		PUUID:                       "puuid-" + name,
		RiotIDGameName:              name,
		ChampionName:                "Jinx",
		TeamID:                      team,
		TeamPosition:                "BOTTOM",
		Win:                         win,
		Kills:                       k,
		Deaths:                      d,
		Assists:                     a,
		TotalMinionsKilled:          150,
		NeutralMinionsKilled:        10,
		TotalDamageDealtToChampions: 20000,
		VisionScore:                 20,
		IsRosterMember:              true,
		RosterDisplayName:           &n,
	}
}

func stranger(team int, win bool, k int) model.Participant {
	return model.Participant{PUUID: "x", TeamID: team, Win: win, Kills: k, TotalDamageDealtToChampions: 20000}
}

func game(id string, created int64, ps ...model.Participant) model.MatchRecord {
	return model.MatchRecord{MatchID: id, GameCreation: created, GameDuration: 1800, QueueID: 420, Participants: ps}
}

func TestCompute_PlayerTotalsAndRatios(t *testing.T) {
	matches := []model.MatchRecord{
		game("NA1_2", 2,
			boy("A", 100, true, 10, 0, 5),
			stranger(100, true, 5),
			stranger(200, false, 3),
		),
		game("NA1_1", 1,
			boy("A", 100, false, 2, 4, 2),
			stranger(100, false, 8),
		),
	}
	sum := Compute(matches, []string{"A", "B"})

	a := sum.Players["A"]
	if a.Games != 2 || a.Wins != 1 || a.Kills != 12 || a.Deaths != 4 || a.Assists != 7 {
		t.Fatalf("unexpected totals %+v", a)
	}
	if a.PerfectGames != 1 {
		t.Errorf("expected 1 perfect game, got %d", a.PerfectGames)
	}
	if a.CS != 320 {
		t.Errorf("expected cs 320, got %d", a.CS)
	}
	if !a.WinRate.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected 50%% win rate, got %s", a.WinRate)
	}
	if a.KDA.String() != "4.75" {
		t.Errorf("expected KDA 4.75, got %s", a.KDA)
	}
	// KP: (15/15 + 4/10) / 2 = 70%.
	if a.AvgKP.String() != "70" {
		t.Errorf("expected avg KP 70, got %s", a.AvgKP)
	}
	// Damage share: 0.5 in both games.
	if a.AvgDmgShare.String() != "50" {
		t.Errorf("expected damage share 50, got %s", a.AvgDmgShare)
	}
	if a.Champions["Jinx"].Games != 2 || a.Roles["BOTTOM"] != 2 {
		t.Errorf("unexpected champion/role counts %+v %+v", a.Champions, a.Roles)
	}
	if sum.Players["B"].Games != 0 {
		t.Error("B played no games")
	}
	if sum.TotalGames != 2 || sum.TotalWins != 1 {
		t.Errorf("unexpected totals %d/%d", sum.TotalWins, sum.TotalGames)
	}
}

func TestCompute_SkipsUnselectedAndNonRoster(t *testing.T) {
	matches := []model.MatchRecord{
		game("NA1_1", 1, boy("C", 100, true, 1, 1, 1), stranger(200, false, 1)),
		game("NA1_2", 2, stranger(100, true, 1)),
	}
	sum := Compute(matches, []string{"A"})
	if sum.TotalGames != 0 || len(sum.RecentGames) != 0 {
		t.Errorf("expected no games, got %d", sum.TotalGames)
	}
	if sum.Streak.Type != "" {
		t.Errorf("expected empty streak, got %+v", sum.Streak)
	}
}

func TestCompute_DuosAndStreak(t *testing.T) {
	matches := []model.MatchRecord{
		game("NA1_3", 3, boy("B", 100, true, 1, 1, 1), boy("A", 100, true, 1, 1, 1)),
		game("NA1_2", 2, boy("A", 200, true, 1, 1, 1), boy("B", 200, true, 1, 1, 1), boy("C", 200, true, 1, 1, 1)),
		game("NA1_1", 1, boy("A", 100, false, 1, 1, 1), boy("B", 100, false, 1, 1, 1)),
	}
	sum := Compute(matches, []string{"A", "B", "C"})

	ab := sum.Duos["A+B"]
	if ab == nil || ab.Games != 3 || ab.Wins != 2 {
		t.Fatalf("unexpected A+B duo %+v", ab)
	}
	if ab.Players != [2]string{"A", "B"} {
		t.Errorf("duo players should be sorted, got %v", ab.Players)
	}
	if sum.Duos["A+C"].Games != 1 || sum.Duos["B+C"].Games != 1 {
		t.Error("three-player game should count every pair")
	}
	if got := sum.DuosByGames(2); len(got) != 1 || got[0] != ab {
		t.Errorf("expected only A+B with >=2 games, got %v", got)
	}
	if sum.Streak.Type != "win" || sum.Streak.Count != 2 {
		t.Errorf("expected 2-game win streak, got %+v", sum.Streak)
	}
	if len(sum.RecentGames[1].Players) != 3 {
		t.Errorf("recent game should list roster players, got %v", sum.RecentGames[1].Players)
	}
}

func TestCompute_RecentGamesCapped(t *testing.T) {
	var matches []model.MatchRecord
	for i := 30; i > 0; i-- {
		matches = append(matches, game(fmt.Sprintf("NA1_%d", i), int64(i), boy("A", 100, i%2 == 0, 1, 1, 1)))
	}
	sum := Compute(matches, []string{"A"})
	if len(sum.RecentGames) != recentGamesLimit {
		t.Errorf("expected %d recent games, got %d", recentGamesLimit, len(sum.RecentGames))
	}
	if sum.RecentGames[0].MatchID != "NA1_30" {
		t.Errorf("recent games should keep input order, got %s", sum.RecentGames[0].MatchID)
	}
}

func TestAwards_RequireMinimumGames(t *testing.T) {
	var matches []model.MatchRecord
	for i := 0; i < 3; i++ {
		matches = append(matches, game(fmt.Sprintf("NA1_%d", i), int64(i),
			boy("A", 100, true, 10, 1, 10),
			boy("B", 100, true, 1, 5, 1),
		))
	}
	matches = append(matches, game("NA1_9", 9, boy("C", 100, true, 30, 0, 30)))

	sum := Compute(matches, []string{"A", "B", "C"})
	got := map[string]Award{}
	for _, a := range sum.Awards {
		got[a.Title] = a
	}
	if got["Cleanest"].Player != "A" || got["Cleanest"].Value != "20.00" {
		t.Errorf("unexpected Cleanest award %+v", got["Cleanest"])
	}
	if got["Death Wish"].Player != "B" || got["Death Wish"].Value != "5.0" {
		t.Errorf("unexpected Death Wish award %+v", got["Death Wish"])
	}
	for _, a := range sum.Awards {
		if a.Player == "C" {
			t.Errorf("C has too few games for %s", a.Title)
		}
	}
	if got["Sniper"].Value != "667" {
		t.Errorf("expected 667 damage/min, got %+v", got["Sniper"])
	}
}
