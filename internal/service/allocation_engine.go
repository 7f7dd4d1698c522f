package service

import (
	"math/rand"
	"sort"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/pkg/config"
)

// capacityLedger tracks remaining seats per offer for the duration of one recommendation run.
// It is never persisted.
type capacityLedger struct {
	offers     map[string]models.OfferCandidate
	remaining  map[string]int
	byLecturer map[string][]string
	lecturers  []string
	load       map[string]int
}

func newCapacityLedger(offers []models.OfferCandidate) *capacityLedger {
	ledger := &capacityLedger{
		offers:     make(map[string]models.OfferCandidate, len(offers)),
		remaining:  make(map[string]int, len(offers)),
		byLecturer: make(map[string][]string),
		load:       make(map[string]int),
	}
	sorted := make([]models.OfferCandidate, len(offers))
	copy(sorted, offers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LecturerID != sorted[j].LecturerID {
			return sorted[i].LecturerID < sorted[j].LecturerID
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, offer := range sorted {
		if offer.Status != models.OfferStatusApproved || !offer.Active || offer.DeletedAt != nil {
			continue
		}
		if _, dup := ledger.offers[offer.ID]; dup {
			continue
		}
		ledger.offers[offer.ID] = offer
		ledger.remaining[offer.ID] = offer.Remaining()
		if _, seen := ledger.byLecturer[offer.LecturerID]; !seen {
			ledger.lecturers = append(ledger.lecturers, offer.LecturerID)
		}
		ledger.byLecturer[offer.LecturerID] = append(ledger.byLecturer[offer.LecturerID], offer.ID)
	}
	return ledger
}

func (l *capacityLedger) take(offerID string) bool {
	if l.remaining[offerID] <= 0 {
		return false
	}
	l.remaining[offerID]--
	l.load[l.offers[offerID].LecturerID]++
	return true
}

func (l *capacityLedger) lecturerRemaining(lecturerID string) int {
	total := 0
	for _, id := range l.byLecturer[lecturerID] {
		total += l.remaining[id]
	}
	return total
}

// firstOpenOffer returns the lecturer's earliest offer that still has a seat.
func (l *capacityLedger) firstOpenOffer(lecturerID string) (models.OfferCandidate, bool) {
	for _, id := range l.byLecturer[lecturerID] {
		if l.remaining[id] > 0 {
			return l.offers[id], true
		}
	}
	return models.OfferCandidate{}, false
}

// matching lists offers a preference points at, in ledger order.
func (l *capacityLedger) matching(pref models.StudentPreference) []models.OfferCandidate {
	var result []models.OfferCandidate
	switch {
	case pref.LecturerID != nil && *pref.LecturerID != "":
		for _, id := range l.byLecturer[*pref.LecturerID] {
			offer := l.offers[id]
			if pref.TopicPoolID != nil && *pref.TopicPoolID != "" {
				if offer.TopicPoolID == nil || *offer.TopicPoolID != *pref.TopicPoolID {
					continue
				}
			}
			result = append(result, offer)
		}
	case pref.TopicPoolID != nil && *pref.TopicPoolID != "":
		for _, lecturerID := range l.lecturers {
			for _, id := range l.byLecturer[lecturerID] {
				offer := l.offers[id]
				if offer.TopicPoolID != nil && *offer.TopicPoolID == *pref.TopicPoolID {
					result = append(result, offer)
				}
			}
		}
	}
	return result
}

func (l *capacityLedger) scope(lecturerID string) models.Scope {
	ids := l.byLecturer[lecturerID]
	if len(ids) == 0 {
		return models.Scope{}
	}
	offer := l.offers[ids[0]]
	return models.Scope{DivisionID: offer.LecturerDivisionID, FacultyID: offer.LecturerFacultyID}
}

// preferenceIndex groups pending preferences per student, most preferred first.
type preferenceIndex struct {
	students  []string
	byStudent map[string][]models.StudentPreference
	scopes    map[string]models.Scope
}

func newPreferenceIndex(prefs []models.PreferenceCandidate) *preferenceIndex {
	index := &preferenceIndex{
		byStudent: make(map[string][]models.StudentPreference),
		scopes:    make(map[string]models.Scope),
	}
	for _, pref := range prefs {
		if pref.Status != models.PreferenceStatusPending || pref.DeletedAt != nil {
			continue
		}
		if _, seen := index.byStudent[pref.StudentID]; !seen {
			index.students = append(index.students, pref.StudentID)
			index.scopes[pref.StudentID] = models.Scope{DivisionID: pref.StudentDivisionID, FacultyID: pref.StudentFacultyID}
		}
		index.byStudent[pref.StudentID] = append(index.byStudent[pref.StudentID], pref.StudentPreference)
	}
	sort.Strings(index.students)
	for _, items := range index.byStudent {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Priority != items[j].Priority {
				return items[i].Priority < items[j].Priority
			}
			return items[i].ID < items[j].ID
		})
	}
	return index
}

// AllocationEngineConfig selects how the fallback pass orders lecturers.
type AllocationEngineConfig struct {
	FallbackStrategy string
	FallbackSeed     int64
}

// AllocationEngine turns pending preferences and open offers into suggested pairings.
type AllocationEngine struct {
	strategy string
	seed     int64
}

// NewAllocationEngine builds an engine. Unknown strategies fall back to the deterministic order.
func NewAllocationEngine(cfg AllocationEngineConfig) *AllocationEngine {
	strategy := cfg.FallbackStrategy
	if strategy != config.FallbackShuffle {
		strategy = config.FallbackDeterministic
	}
	return &AllocationEngine{strategy: strategy, seed: cfg.FallbackSeed}
}

// RecommendationOutcome is the raw engine result.
type RecommendationOutcome struct {
	Items       []dto.RecommendationItem
	Unallocated []string
}

// Recommend runs the preference pass followed by the fallback pass. The scope filter only
// restricts the fallback pass; explicit preferences are honoured as stated.
func (e *AllocationEngine) Recommend(prefs []models.PreferenceCandidate, offers []models.OfferCandidate, filter models.ScopeFilter) RecommendationOutcome {
	index := newPreferenceIndex(prefs)
	ledger := newCapacityLedger(offers)
	outcome := RecommendationOutcome{Items: []dto.RecommendationItem{}, Unallocated: []string{}}

	var pending []string
	for _, studentID := range index.students {
		assigned := false
		for _, pref := range index.byStudent[studentID] {
			for _, offer := range ledger.matching(pref) {
				if !ledger.take(offer.ID) {
					continue
				}
				outcome.Items = append(outcome.Items, dto.RecommendationItem{
					StudentID:  studentID,
					LecturerID: offer.LecturerID,
					OfferID:    offer.ID,
					TopicTitle: topicFor(pref, offer),
					Source:     dto.RecommendationSourcePreference,
					Priority:   pref.Priority,
				})
				assigned = true
				break
			}
			if assigned {
				break
			}
		}
		if !assigned {
			pending = append(pending, studentID)
		}
	}

	pool := e.fallbackPool(ledger)
	for _, studentID := range pending {
		lecturerID, ok := e.pickFallback(ledger, pool, index.scopes[studentID], filter)
		if !ok {
			outcome.Unallocated = append(outcome.Unallocated, studentID)
			continue
		}
		offer, _ := ledger.firstOpenOffer(lecturerID)
		ledger.take(offer.ID)
		outcome.Items = append(outcome.Items, dto.RecommendationItem{
			StudentID:  studentID,
			LecturerID: lecturerID,
			OfferID:    offer.ID,
			TopicTitle: stringValue(offer.TopicTitle),
			Source:     dto.RecommendationSourceFallback,
		})
		if ledger.lecturerRemaining(lecturerID) == 0 {
			pool = removeString(pool, lecturerID)
		}
	}
	return outcome
}

func (e *AllocationEngine) fallbackPool(ledger *capacityLedger) []string {
	pool := make([]string, 0, len(ledger.lecturers))
	for _, lecturerID := range ledger.lecturers {
		if ledger.lecturerRemaining(lecturerID) > 0 {
			pool = append(pool, lecturerID)
		}
	}
	if e.strategy == config.FallbackShuffle {
		rng := rand.New(rand.NewSource(e.seed))
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}
	return pool
}

// pickFallback returns the first eligible lecturer. The deterministic strategy prefers the
// lecturer with the lowest load in this run, then the lowest id; the shuffle strategy keeps pool order.
func (e *AllocationEngine) pickFallback(ledger *capacityLedger, pool []string, studentScope models.Scope, filter models.ScopeFilter) (string, bool) {
	best := ""
	for _, lecturerID := range pool {
		if ledger.lecturerRemaining(lecturerID) <= 0 {
			continue
		}
		if !filter.Matches(studentScope, ledger.scope(lecturerID)) {
			continue
		}
		if e.strategy == config.FallbackShuffle {
			return lecturerID, true
		}
		if best == "" || ledger.load[lecturerID] < ledger.load[best] ||
			(ledger.load[lecturerID] == ledger.load[best] && lecturerID < best) {
			best = lecturerID
		}
	}
	return best, best != ""
}

func topicFor(pref models.StudentPreference, offer models.OfferCandidate) string {
	if title := stringValue(pref.TopicTitle); title != "" {
		return title
	}
	return stringValue(offer.TopicTitle)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func removeString(items []string, target string) []string {
	result := items[:0]
	for _, item := range items {
		if item != target {
			result = append(result, item)
		}
	}
	return result
}
