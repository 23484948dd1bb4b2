package attribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/schollz/closestmatch"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnresolved means no team could be determined, not even the operator's.
var ErrUnresolved = errors.New("attribution unresolved")

// Alias maps a seller name as written by a source system to a user.
type Alias struct {
	ExternalName string
	UserID       int64
}

// Person is an entry of the people directory.
type Person struct {
	UserID   int64
	FullName string
	TeamID   int64
}

type Directory interface {
	FetchAliasTable(ctx context.Context) ([]Alias, error)
	FetchPeopleDirectory(ctx context.Context) ([]Person, error)
}

const (
	MatchAlias     = "alias"
	MatchFullName  = "full_name"
	MatchFirstName = "first_name"
	MatchFallback  = "fallback"
)

// Attribution is the user and team a transaction is credited to.
type Attribution struct {
	UserID            int64
	TeamID            int64
	RegisteredByAdmin bool
	MatchedBy         string
	// Ambiguous is set when the seller's first name belongs to several
	// people; Candidates lists their full names.
	Ambiguous  bool
	Candidates []string
	// Suggestion is the closest directory name for an unmatched seller.
	Suggestion string
}

type Resolver struct {
	operatorUserID int64
	operatorTeamID int64

	aliases   map[string]int64
	people    map[int64]Person
	fullNames map[string]Person
	// firstNames holds every person sharing a first-name token, in
	// directory order.
	firstNames map[string][]Person

	names   []string
	matcher *closestmatch.ClosestMatch
	display map[string]string
}

// Load fetches both directories and builds a resolver for operatorUserID.
func Load(ctx context.Context, directory Directory, operatorUserID int64) (*Resolver, error) {
	aliases, err := directory.FetchAliasTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch seller alias table: %w", err)
	}
	people, err := directory.FetchPeopleDirectory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch people directory: %w", err)
	}
	return NewResolver(aliases, people, operatorUserID), nil
}

func NewResolver(aliases []Alias, people []Person, operatorUserID int64) *Resolver {
	r := &Resolver{
		operatorUserID: operatorUserID,
		aliases:        make(map[string]int64, len(aliases)),
		people:         make(map[int64]Person, len(people)),
		fullNames:      make(map[string]Person, len(people)),
		firstNames:     make(map[string][]Person),
		display:        make(map[string]string, len(people)),
	}

	for _, alias := range aliases {
		key := Fold(alias.ExternalName)
		if key == "" {
			continue
		}
		if _, exists := r.aliases[key]; !exists {
			r.aliases[key] = alias.UserID
		}
	}

	for _, person := range people {
		if _, exists := r.people[person.UserID]; !exists {
			r.people[person.UserID] = person
		}
		key := Fold(person.FullName)
		if key == "" {
			continue
		}
		if _, exists := r.fullNames[key]; !exists {
			r.fullNames[key] = person
			r.names = append(r.names, key)
			r.display[key] = person.FullName
		}
		first := firstToken(key)
		r.firstNames[first] = append(r.firstNames[first], person)
	}

	if operator, ok := r.people[operatorUserID]; ok {
		r.operatorTeamID = operator.TeamID
	}
	if len(r.names) > 0 {
		r.matcher = closestmatch.New(r.names, []int{2, 3})
	}
	return r
}

// Resolve attributes sellerText to a user and team. The alias table is
// consulted first, then full names, then first names. Blank or unmatched
// sellers fall back to the operator with RegisteredByAdmin set.
func (r *Resolver) Resolve(sellerText string) (Attribution, error) {
	key := Fold(sellerText)
	if key == "" {
		return r.fallback(Attribution{})
	}

	if userID, ok := r.aliases[key]; ok {
		if person, known := r.people[userID]; known && person.TeamID > 0 {
			return Attribution{UserID: userID, TeamID: person.TeamID, MatchedBy: MatchAlias}, nil
		}
	}

	if person, ok := r.fullNames[key]; ok && person.TeamID > 0 {
		return Attribution{UserID: person.UserID, TeamID: person.TeamID, MatchedBy: MatchFullName}, nil
	}

	candidates := r.firstNames[firstToken(key)]
	switch {
	case len(candidates) == 1 && candidates[0].TeamID > 0:
		person := candidates[0]
		return Attribution{UserID: person.UserID, TeamID: person.TeamID, MatchedBy: MatchFirstName}, nil
	case len(candidates) > 1:
		// Several people share the first name; crediting any of them would be a guess.
		names := make([]string, len(candidates))
		for i, person := range candidates {
			names[i] = person.FullName
		}
		return r.fallback(Attribution{Ambiguous: true, Candidates: names})
	}

	return r.fallback(Attribution{Suggestion: r.suggest(key)})
}

func (r *Resolver) fallback(partial Attribution) (Attribution, error) {
	if r.operatorTeamID <= 0 {
		return partial, fmt.Errorf("%w: operator %d has no team", ErrUnresolved, r.operatorUserID)
	}
	partial.UserID = r.operatorUserID
	partial.TeamID = r.operatorTeamID
	partial.RegisteredByAdmin = true
	partial.MatchedBy = MatchFallback
	return partial, nil
}

// suggest returns the directory name closest to key. closestmatch narrows the
// candidates by shared substrings; edit distance then picks one
// deterministically so repeated validations agree.
func (r *Resolver) suggest(key string) string {
	if r.matcher == nil {
		return ""
	}
	best, bestDistance := "", -1
	for _, candidate := range r.matcher.ClosestN(key, len(r.names)) {
		if candidate == "" {
			continue
		}
		distance := fuzzy.LevenshteinDistance(key, candidate)
		if bestDistance < 0 || distance < bestDistance || (distance == bestDistance && candidate < best) {
			best, bestDistance = candidate, distance
		}
	}
	return r.display[best]
}

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases, strips accents and collapses whitespace.
func Fold(value string) string {
	folded, _, err := transform.String(foldChain, value)
	if err != nil {
		folded = value
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func firstToken(folded string) string {
	if cut := strings.IndexByte(folded, ' '); cut >= 0 {
		return folded[:cut]
	}
	return folded
}
