package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersona_SparseColumnsSkipsBlankValues(t *testing.T) {
	t.Parallel()

	incoming := Persona{
		Name:  StringPtr("Ana"),
		Email: StringPtr(""),
		City:  StringPtr("   "),
	}

	sparse := incoming.SparseColumns()
	require.Len(t, sparse, 1)
	assert.Equal(t, "Ana", sparse["name"])
	_, hasEmail := sparse["email"]
	assert.False(t, hasEmail, "blank email must not be part of the overlay")
}

func TestPersona_ColumnsKeepsNilsForInsert(t *testing.T) {
	t.Parallel()

	birth := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	full := Persona{Name: StringPtr("Ana"), BirthDate: &birth}.Columns()

	assert.Len(t, full, 11)
	assert.Nil(t, full["email"])
	assert.Equal(t, "1990-05-17", full["birth_date"])
}

func TestPersona_OverlayKeepsExistingWhenIncomingBlank(t *testing.T) {
	t.Parallel()

	stored := Persona{Name: StringPtr("Ana"), Email: StringPtr("a@x.com")}
	stored.Overlay(Persona{Name: StringPtr("Ana Souza"), Email: StringPtr("")})

	require.NotNil(t, stored.Email)
	assert.Equal(t, "a@x.com", *stored.Email)
	assert.Equal(t, "Ana Souza", *stored.Name)
}

func TestPersona_Skippable(t *testing.T) {
	t.Parallel()

	assert.True(t, Persona{}.Skippable())
	assert.True(t, Persona{Name: StringPtr("  ")}.Skippable())
	assert.False(t, Persona{Name: StringPtr("Ana")}.Skippable())
	assert.False(t, Persona{TaxID: StringPtr("12345678900")}.Skippable())
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind(" Vendas ")
	require.NoError(t, err)
	assert.Equal(t, KindSales, kind)
	assert.True(t, kind.IsTransaction())
	assert.Equal(t, "vendas", kind.Table())

	_, err = ParseKind("campaigns")
	assert.Error(t, err)
}
