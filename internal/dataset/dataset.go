// Package dataset holds the pure transforms over a persisted Dataset:
// recency ordering of match ids, merge with dedupe, and normalization.
// Nothing in this package performs I/O.
package dataset

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/vibetom/boystats/internal/model"
)

// RecencyKey parses the numeric suffix of a match id ("NA1_4823456789").
// Ids without a parseable suffix sort as 0.
func RecencyKey(matchID string) int64 {
	_, num, found := strings.Cut(matchID, "_")
	if !found {
		return 0
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SortIDs orders ids newest first by recency key. Equal keys fall back to
// lexical order so the result is total.
func SortIDs(ids []string) {
	slices.SortStableFunc(ids, compareIDs)
}

func compareIDs(a, b string) int {
	if c := cmp.Compare(RecencyKey(b), RecencyKey(a)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// SortMatches orders matches by creation time, newest first. Ties are
// broken by match id recency and then lexically.
func SortMatches(matches []model.MatchRecord) {
	slices.SortStableFunc(matches, func(a, b model.MatchRecord) int {
		if c := cmp.Compare(b.GameCreation, a.GameCreation); c != 0 {
			return c
		}
		return compareIDs(a.MatchID, b.MatchID)
	})
}

// UniqueIDs returns ids with duplicates removed, in first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Merge combines fresh matches with an existing dataset. On duplicate ids
// the fresh record wins. MatchIDs becomes freshIDs ∪ existing.MatchIDs ∪ the
// ids of every kept match. The existing value is not modified.
func Merge(existing model.Dataset, fresh []model.MatchRecord, freshIDs []string) model.Dataset {
	matches := make([]model.MatchRecord, 0, len(fresh)+len(existing.Matches))
	seen := make(map[string]struct{}, cap(matches))
	for _, group := range [][]model.MatchRecord{fresh, existing.Matches} {
		for _, m := range group {
			if _, ok := seen[m.MatchID]; ok {
				continue
			}
			seen[m.MatchID] = struct{}{}
			matches = append(matches, m)
		}
	}
	SortMatches(matches)

	ids := make([]string, 0, len(freshIDs)+len(existing.MatchIDs)+len(matches))
	ids = append(ids, freshIDs...)
	ids = append(ids, existing.MatchIDs...)
	for _, m := range matches {
		ids = append(ids, m.MatchID)
	}
	ids = UniqueIDs(ids)
	SortIDs(ids)

	players := make(map[string]string, len(existing.Players))
	for name, id := range existing.Players {
		players[name] = id
	}

	return model.Dataset{
		Matches:   matches,
		MatchIDs:  ids,
		Players:   players,
		Timestamp: existing.Timestamp,
		UpdatedAt: existing.UpdatedAt,
		Version:   existing.Version,
	}
}

// WithPlayers returns ds with players merged in; later values win.
func WithPlayers(ds model.Dataset, players map[string]string) model.Dataset {
	merged := make(map[string]string, len(ds.Players)+len(players))
	for name, id := range ds.Players {
		merged[name] = id
	}
	for name, id := range players {
		merged[name] = id
	}
	ds.Players = merged
	return ds
}

// Normalize dedupes and sorts a dataset built outside Merge, so every
// persisted dataset satisfies the same invariants.
func Normalize(ds model.Dataset) model.Dataset {
	out := Merge(model.Dataset{}, ds.Matches, ds.MatchIDs)
	out.Players = ds.Players
	out.Timestamp = ds.Timestamp
	out.UpdatedAt = ds.UpdatedAt
	out.Version = ds.Version
	if out.Players == nil {
		out.Players = map[string]string{}
	}
	return out
}

// Window returns at most n of the most recent matches. n <= 0 means all.
func Window(matches []model.MatchRecord, n int) []model.MatchRecord {
	if n <= 0 || len(matches) <= n {
		return matches
	}
	return matches[:n]
}
