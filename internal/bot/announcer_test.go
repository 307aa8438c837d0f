package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ponybot/internal/model"
)

func TestSpawnTextShowsRarity(t *testing.T) {
	tests := []struct {
		name   string
		rarity int
		want   string
	}{
		{"common", 1, "common"},
		{"uncommon", 2, "uncommon"},
		{"rare", 3, "rare"},
		{"epic", 4, "epic"},
		{"legendary", 5, "legendary"},
		{"above known tiers", 7, "legendary"},
		{"below known tiers", 0, "common"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := spawnText(&model.PonySpecies{Name: "Cloud Dancer", Rarity: tt.rarity})
			assert.Contains(t, text, "A wild "+tt.want+" pony")
			assert.Contains(t, text, "Cloud Dancer")
			assert.NotContains(t, text, "%!")
		})
	}
}

func TestUnboundAnnouncerDropsSends(t *testing.T) {
	a := NewAnnouncer()
	sp := &model.PonySpecies{Name: "Cloud Dancer", Rarity: 3}

	assert.NoError(t, a.PonyAppeared(42, sp))
	assert.NoError(t, a.PonyEscaped(42, sp))
}
