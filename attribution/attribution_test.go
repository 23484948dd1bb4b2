package attribution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorID = 99

func directory() []Person {
	return []Person{
		{UserID: 1, FullName: "Maria Souza", TeamID: 10},
		{UserID: 2, FullName: "João Pereira", TeamID: 20},
		{UserID: 3, FullName: "Ana Lima", TeamID: 30},
		{UserID: 4, FullName: "Ana Costa", TeamID: 40},
		{UserID: operatorID, FullName: "Admin Clínica", TeamID: 90},
	}
}

func TestResolve_AliasTableHit(t *testing.T) {
	t.Parallel()

	resolver := NewResolver([]Alias{{ExternalName: "JP Vendas", UserID: 2}}, directory(), operatorID)

	got, err := resolver.Resolve("  jp   VENDAS ")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UserID)
	assert.Equal(t, int64(20), got.TeamID)
	assert.Equal(t, MatchAlias, got.MatchedBy)
	assert.False(t, got.RegisteredByAdmin)
}

func TestResolve_FullNameHitIgnoresCaseAndAccents(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), operatorID)

	got, err := resolver.Resolve("JOAO PEREIRA")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UserID)
	assert.Equal(t, MatchFullName, got.MatchedBy)
}

func TestResolve_FirstNameHit(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), operatorID)

	got, err := resolver.Resolve("Maria")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UserID)
	assert.Equal(t, int64(10), got.TeamID)
	assert.Equal(t, MatchFirstName, got.MatchedBy)
}

func TestResolve_FirstNameCollisionFallsBackToOperator(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), operatorID)

	got, err := resolver.Resolve("Ana")
	require.NoError(t, err)
	assert.True(t, got.Ambiguous)
	assert.ElementsMatch(t, []string{"Ana Lima", "Ana Costa"}, got.Candidates)
	assert.Equal(t, int64(operatorID), got.UserID)
	assert.Equal(t, int64(90), got.TeamID)
	assert.True(t, got.RegisteredByAdmin)
}

func TestResolve_FullNameBeatsFirstNameCollision(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), operatorID)

	got, err := resolver.Resolve("Ana Costa")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.UserID)
	assert.False(t, got.Ambiguous)
}

func TestResolve_BlankSellerUsesOperator(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), operatorID)

	got, err := resolver.Resolve("   ")
	require.NoError(t, err)
	assert.Equal(t, MatchFallback, got.MatchedBy)
	assert.True(t, got.RegisteredByAdmin)
	assert.Equal(t, int64(90), got.TeamID)
}

func TestResolve_UnmatchedSellerCarriesSuggestion(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), operatorID)

	got, err := resolver.Resolve("Mariah Souzza")
	require.NoError(t, err)
	assert.Equal(t, MatchFallback, got.MatchedBy)
	assert.Equal(t, "Maria Souza", got.Suggestion)
}

func TestResolve_OperatorWithoutTeamIsUnresolved(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, directory(), 12345)

	_, err := resolver.Resolve("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolved))

	got, err := resolver.Resolve("Maria Souza")
	require.NoError(t, err, "matched sellers do not need the operator team")
	assert.Equal(t, int64(1), got.UserID)
}

type staticDirectory struct {
	aliases []Alias
	people  []Person
	err     error
}

func (d staticDirectory) FetchAliasTable(context.Context) ([]Alias, error) {
	return d.aliases, d.err
}

func (d staticDirectory) FetchPeopleDirectory(context.Context) ([]Person, error) {
	return d.people, nil
}

func TestLoad(t *testing.T) {
	t.Parallel()

	resolver, err := Load(context.Background(), staticDirectory{people: directory()}, operatorID)
	require.NoError(t, err)
	fallback, err := resolver.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, int64(90), fallback.TeamID)
	assert.True(t, fallback.RegisteredByAdmin)

	_, err = Load(context.Background(), staticDirectory{err: errors.New("offline")}, operatorID)
	assert.Error(t, err)
}
