package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanelIsValidSize(t *testing.T) {
	tests := []struct {
		size  int
		valid bool
	}{
		{11, false},
		{12, true},
		{24, true},
		{42, true},
		{43, false},
		{0, false},
	}

	for _, tt := range tests {
		panel := Panel{Size: tt.size}
		assert.Equal(t, tt.valid, panel.IsValidSize(), "size %d", tt.size)
	}
}

func TestPanelContainsPosition(t *testing.T) {
	panel := Panel{Size: 24}

	assert.True(t, panel.ContainsPosition(1))
	assert.True(t, panel.ContainsPosition(24))
	assert.False(t, panel.ContainsPosition(0))
	assert.False(t, panel.ContainsPosition(25))
	assert.False(t, panel.ContainsPosition(-3))
}

func TestCircuitHelpers(t *testing.T) {
	subpanelID := uint(2)
	feed := Circuit{Type: CircuitTypeSubpanel, SubpanelID: &subpanelID}
	assert.True(t, feed.IsSubpanelFeed())

	// Без ссылки на щит цепь типа subpanel не считается питающей
	assert.False(t, (&Circuit{Type: CircuitTypeSubpanel}).IsSubpanelFeed())
	assert.False(t, (&Circuit{Type: CircuitTypeOutlet, SubpanelID: &subpanelID}).IsSubpanelFeed())

	assert.True(t, IsValidCircuitType(CircuitTypeHeating))
	assert.False(t, IsValidCircuitType("hvac"))
}

func TestRoomLevelHelpers(t *testing.T) {
	assert.True(t, IsValidRoomLevel(RoomLevelBasement))
	assert.True(t, IsValidRoomLevel(RoomLevelOutside))
	assert.False(t, IsValidRoomLevel("roof"))

	room := Room{Level: RoomLevelBasement}
	assert.Equal(t, "Подвал", room.GetLevelDisplayName())
}
