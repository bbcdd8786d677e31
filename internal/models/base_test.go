package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeCreateAssignsOrderedIDs(t *testing.T) {
	var first, second BaseModel
	require.NoError(t, first.BeforeCreate(nil))
	require.NoError(t, second.BeforeCreate(nil))

	assert.Equal(t, uuid.Version(7), first.ID.Version())
	assert.Less(t, first.ID.String(), second.ID.String())
}

func TestBeforeCreateKeepsPresetID(t *testing.T) {
	id := uuid.New()
	b := BaseModel{ID: id}
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, id, b.ID)
}
