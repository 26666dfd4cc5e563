package matchmaking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/models"
)

const (
	defaultMaxDistanceKm = 1.0
	earthRadiusKm        = 6371.0

	ReasonLive = "Live at the event now"
)

// Weights are the bounded contributions of each compatibility signal.
type Weights struct {
	Base      int
	Industry  int
	Goal      int
	GoalCap   int
	Proximity int
}

func WeightsFromConfig(c config.MatchingConfig) Weights {
	return Weights{
		Base:      c.BaseWeight,
		Industry:  c.IndustryWeight,
		Goal:      c.GoalWeight,
		GoalCap:   c.GoalCap,
		Proximity: c.ProximityWeight,
	}
}

// Candidate is one side of a pairing as the scorer sees it.
type Candidate struct {
	UserID   string
	Profile  *models.AttendeeProfile
	Location *string
}

type Result struct {
	UserID  string
	Score   int
	Reasons []string
}

// Score rates candidate for requester. It is a pure function of its inputs.
func Score(w Weights, requester, candidate Candidate, criteria models.MatchingCriteria) Result {
	score := w.Base
	var reasons []string

	if pts, reason := industrySignal(w, requester, candidate, criteria); pts > 0 {
		score += pts
		reasons = append(reasons, reason)
	}
	if pts, reason := goalSignal(w, requester, candidate, criteria); pts > 0 {
		score += pts
		reasons = append(reasons, reason)
	}
	if pts, reason := proximitySignal(w, requester, candidate, criteria); pts > 0 {
		score += pts
		reasons = append(reasons, reason)
	}
	reasons = append(reasons, ReasonLive)

	return Result{UserID: candidate.UserID, Score: clamp(score, 0, 100), Reasons: reasons}
}

// Rank scores every candidate and orders them by score, then user id.
func Rank(w Weights, requester Candidate, candidates []Candidate, criteria models.MatchingCriteria) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Score(w, requester, c, criteria))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UserID < results[j].UserID
	})
	return results
}

func industrySignal(w Weights, requester, candidate Candidate, criteria models.MatchingCriteria) (int, string) {
	if candidate.Profile == nil || candidate.Profile.Industry == "" {
		return 0, ""
	}
	industry := candidate.Profile.Industry
	if requester.Profile != nil && strings.EqualFold(requester.Profile.Industry, industry) {
		return w.Industry, fmt.Sprintf("Both work in %s", industry)
	}
	for _, want := range criteria.Industries {
		if strings.EqualFold(strings.TrimSpace(want), industry) {
			return w.Industry, fmt.Sprintf("Works in %s", industry)
		}
	}
	return 0, ""
}

func goalSignal(w Weights, requester, candidate Candidate, criteria models.MatchingCriteria) (int, string) {
	if candidate.Profile == nil {
		return 0, ""
	}

	wantGoals := normalizedSet(criteria.Goals)
	wantInterests := normalizedSet(criteria.Interests)
	if requester.Profile != nil {
		for k := range normalizedSet(requester.Profile.Goals) {
			wantGoals[k] = true
		}
		for k := range normalizedSet(requester.Profile.Interests) {
			wantInterests[k] = true
		}
	}

	goals := overlap(candidate.Profile.Goals, wantGoals)
	interests := overlap(candidate.Profile.Interests, wantInterests)
	n := len(goals) + len(interests)
	if n == 0 {
		return 0, ""
	}

	pts := n * w.Goal
	if pts > w.GoalCap {
		pts = w.GoalCap
	}
	switch {
	case len(interests) == 0:
		return pts, "Shared goals: " + strings.Join(goals, ", ")
	case len(goals) == 0:
		return pts, "Shared interests: " + strings.Join(interests, ", ")
	default:
		return pts, "Shared goals and interests: " + strings.Join(append(goals, interests...), ", ")
	}
}

func proximitySignal(w Weights, requester, candidate Candidate, criteria models.MatchingCriteria) (int, string) {
	if requester.Location != nil && candidate.Location != nil &&
		strings.EqualFold(strings.TrimSpace(*requester.Location), strings.TrimSpace(*candidate.Location)) {
		return w.Proximity, fmt.Sprintf("Both at %s", strings.TrimSpace(*candidate.Location))
	}

	if !requester.Profile.HasCoordinates() || !candidate.Profile.HasCoordinates() {
		return 0, ""
	}
	maxKm := defaultMaxDistanceKm
	if criteria.MaxDistanceKm != nil && *criteria.MaxDistanceKm > 0 {
		maxKm = *criteria.MaxDistanceKm
	}
	d := haversineKm(*requester.Profile.Latitude, *requester.Profile.Longitude,
		*candidate.Profile.Latitude, *candidate.Profile.Longitude)
	if d > maxKm {
		return 0, ""
	}
	pts := int(math.Round(float64(w.Proximity) * (1 - d/maxKm)))
	if pts <= 0 {
		return 0, ""
	}
	return pts, fmt.Sprintf("Within %.1f km of you", d)
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

func normalizedSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = true
		}
	}
	return out
}

// overlap keeps the candidate's spelling and order, without duplicates.
func overlap(values []string, want map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		k := strings.ToLower(strings.TrimSpace(v))
		if want[k] && !seen[k] {
			seen[k] = true
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
