package stats

import (
	"sort"

	"github.com/shopspring/decimal"
)

type awardDef struct {
	title, sub string
	metric     func(*PlayerStats) (decimal.Decimal, bool)
	format     func(decimal.Decimal) string
}

func perGame(v func(*PlayerStats) int) func(*PlayerStats) (decimal.Decimal, bool) {
	return func(s *PlayerStats) (decimal.Decimal, bool) {
		return ratio(v(s), s.Games), true
	}
}

func fixed(places int32) func(decimal.Decimal) string {
	return func(d decimal.Decimal) string { return d.StringFixed(places) }
}

var awardDefs = []awardDef{
	{
		title: "MVP", sub: "Kill Participation",
		metric: func(s *PlayerStats) (decimal.Decimal, bool) {
			return s.TotalKP.Div(decimal.NewFromInt(int64(s.Games))), true
		},
		format: func(d decimal.Decimal) string { return d.Mul(hundred).StringFixed(0) + "%" },
	},
	{
		title: "Death Wish", sub: "Deaths/Game",
		metric: perGame(func(s *PlayerStats) int { return s.Deaths }),
		format: fixed(1),
	},
	{
		title: "Sniper", sub: "Damage/Min",
		metric: func(s *PlayerStats) (decimal.Decimal, bool) {
			if s.TotalTime == 0 {
				return decimal.Zero, false
			}
			return decimal.NewFromInt(int64(s.Damage)).Mul(decimal.NewFromInt(60)).Div(decimal.NewFromInt(s.TotalTime)), true
		},
		format: fixed(0),
	},
	{
		title: "Hawkeye", sub: "Vision Score",
		metric: perGame(func(s *PlayerStats) int { return s.Vision }),
		format: fixed(1),
	},
	{
		title: "Tank", sub: "Dmg Taken",
		metric: perGame(func(s *PlayerStats) int { return s.DamageTaken }),
		format: fixed(0),
	},
	{
		title: "Cleanest", sub: "KDA",
		metric: func(s *PlayerStats) (decimal.Decimal, bool) {
			return ratio(s.Kills+s.Assists, max(s.Deaths, 1)), true
		},
		format: fixed(2),
	},
}

// awards picks the leader of each category among players with at least
// awardMinGames. Ties go to the alphabetically first name.
func awards(players map[string]*PlayerStats) []Award {
	var names []string
	for name, s := range players {
		if s.Games >= awardMinGames {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := []Award{}
	if len(names) == 0 {
		return out
	}
	for _, def := range awardDefs {
		var best string
		var bestVal decimal.Decimal
		for _, name := range names {
			v, ok := def.metric(players[name])
			if !ok {
				continue
			}
			if best == "" || v.GreaterThan(bestVal) {
				best, bestVal = name, v
			}
		}
		if best == "" {
			continue
		}
		out = append(out, Award{Title: def.title, Sub: def.sub, Player: best, Value: def.format(bestVal)})
	}
	return out
}
