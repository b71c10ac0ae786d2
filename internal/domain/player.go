// Package domain contains entities without logic, just meta-data.
package domain

import "math/rand/v2"

const (
	MaxPlayerNameLen = 36

	DefaultName      = "Guest"
	DefaultCharacter = "adam"
	DefaultAnimation = "player_idle_down"

	// Spawn base point; joins scatter around it so players do not
	// stack on one tile.
	SpawnBaseX = 705
	SpawnBaseY = 500

	publicScatter  = 300
	privateScatter = 100
)

type Player struct {
	SessionID string  `json:"sessionId"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Animation string  `json:"animation"`
	Character string  `json:"character"`
}

// NewPlayer is a tiny helper to avoid ad-hoc struct literals in adapters.
// Private rooms spawn in a tight cluster, public rooms scatter wider.
// Overlong names are truncated, never a reason to refuse a join.
func NewPlayer(sessionID, name, character string, private bool) *Player {
	if name == "" {
		name = DefaultName
	}
	if runes := []rune(name); len(runes) > MaxPlayerNameLen {
		name = string(runes[:MaxPlayerNameLen])
	}
	if character == "" {
		character = DefaultCharacter
	}
	p := &Player{
		SessionID: sessionID,
		Name:      name,
		Animation: DefaultAnimation,
		Character: character,
	}
	if private {
		p.X = SpawnBaseX + rand.Float64()*privateScatter
		p.Y = SpawnBaseY + rand.Float64()*privateScatter
	} else {
		p.X = SpawnBaseX + rand.Float64()*publicScatter - publicScatter/2
		p.Y = SpawnBaseY + rand.Float64()*publicScatter - publicScatter/2
	}
	return p
}
