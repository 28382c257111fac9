package ask

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vibetom/boystats/internal/dataset"
	"github.com/vibetom/boystats/internal/model"
	"github.com/vibetom/boystats/internal/stats"
)

const instructions = `You are BoyStats AI, a statistics analyst for a League of Legends friend group called "The Boys". You have their match history as raw JSON.

Answer from the data. Do not say data is missing; compute it from the raw matches.

HOW TO ANSWER:
1. Find the relevant matches in the JSON.
2. Compute the requested statistics.
3. Cite specific numbers and examples.

Be accurate first, friendly second, and keep answers focused.

QUEUE TYPES: 420=Ranked Solo, 440=Ranked Flex, 400=Normal Draft, 450=ARAM`

const dictionary = `## DATA DICTIONARY

### Match fields
- matchId: unique match identifier
- gameCreation: unix milliseconds when the game started
- gameDuration: game length in seconds
- gameMode: e.g. "CLASSIC", "ARAM"
- queueId: 420=Ranked Solo, 440=Ranked Flex, 400=Normal Draft, 450=ARAM

### Participant fields (ten per match)
- puuid: player id
- isBoy: true for roster members
- boyName: roster name when isBoy is true
- riotIdGameName: in-game name
- championName, teamId (100 blue, 200 red), teamPosition (TOP, JUNGLE, MIDDLE, BOTTOM, UTILITY)
- win, kills, deaths, assists
- totalMinionsKilled, neutralMinionsKilled: lane and jungle CS
- goldEarned, totalDamageDealtToChampions, totalDamageTaken, visionScore
- timeCCingOthers, totalHealsOnTeammates, totalDamageShieldedOnTeammates
- doubleKills, tripleKills, quadraKills, pentaKills
- firstBloodKill, largestKillingSpree, gameEndedInSurrender
- challenges.soloKills, challenges.hadOpenNexus
`

// Prompt renders the full prompt for question. Only the newest matchWindow
// matches are serialized.
func (c *Client) Prompt(question string, summary *stats.Summary, matches []model.MatchRecord) (string, error) {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nThe players (\"The Boys\"):\n")
	for _, name := range c.roster {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString("\nHere's the current stats and match data for The Boys:\n\n")

	ctxText, err := BuildContext(c.roster, summary, dataset.Window(matches, c.matchWindow))
	if err != nil {
		return "", err
	}
	b.WriteString(ctxText)
	fmt.Fprintf(&b, "\nUser's question: %s", question)
	return b.String(), nil
}

// BuildContext renders the data dictionary, roster, stats digest, duo
// synergies and match JSON.
func BuildContext(roster []string, summary *stats.Summary, matches []model.MatchRecord) (string, error) {
	var b strings.Builder
	b.WriteString(dictionary)

	b.WriteString("\n## THE BOYS\n")
	for _, name := range roster {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString("\n")

	if summary != nil && len(summary.Players) > 0 {
		b.WriteString("## COMPUTED STATS SUMMARY\n\n")
		names := make([]string, 0, len(summary.Players))
		for name := range summary.Players {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := summary.Players[name]
			if s.Games == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s: %dg, %s%%WR, %sKDA, %dK/%dD/%dA, %dpenta, %dquadra\n",
				name, s.Games, s.WinRate.StringFixed(1), s.KDA.StringFixed(2),
				s.Kills, s.Deaths, s.Assists, s.Pentas, s.Quadras)
		}
		b.WriteString("\n")

		b.WriteString("## DUO SYNERGIES\n")
		for _, d := range summary.DuosByGames(2) {
			fmt.Fprintf(&b, "%s+%s:%dg,%s%%\n", d.Players[0], d.Players[1], d.Games, d.WinRate.StringFixed(0))
		}
		b.WriteString("\n")
	}

	if len(matches) > 0 {
		raw, err := json.Marshal(matches)
		if err != nil {
			return "", fmt.Errorf("encode matches: %w", err)
		}
		fmt.Fprintf(&b, "## COMPLETE MATCH DATA (%d matches)\n\n```json\n%s\n```\n", len(matches), raw)
	}
	return b.String(), nil
}
