// Package npc is a small enemy brain built on tickfsm: it idles, patrols a
// route, chases the player when spotted, attacks in range and dies when its
// health runs out.
package npc

import (
	"fmt"
	"time"

	"github.com/librescoot/tickfsm"
)

const (
	StateIdle   tickfsm.StateID = "idle"
	StatePatrol tickfsm.StateID = "patrol"
	StateChase  tickfsm.StateID = "chase"
	StateAttack tickfsm.StateID = "attack"
	StateDead   tickfsm.StateID = "dead"
)

// Transition priorities. Death beats everything, reacting to the player
// beats the state's own schedule.
const (
	orderRoutine = 0
	orderReact   = 1
	orderEngage  = 2
	orderDeath   = 100
)

// PlayerSpotted is sent by the perception system with the current distance
type PlayerSpotted struct {
	Distance float64
}

// PlayerLost is sent when the player leaves the field of view
type PlayerLost struct{}

// Damaged is sent when the NPC takes a hit
type Damaged struct {
	Amount int
}

// Stats tunes the brain
type Stats struct {
	Health       int
	IdleFor      time.Duration
	PatrolSpeed  float64 // waypoints per second
	AttackRange  float64
	AttackDamage int
	Cooldown     time.Duration
	Swings       int // swings before re-evaluating the chase
	GiveUpAfter  time.Duration
	Route        Route
}

// DefaultStats returns a reasonable grunt
func DefaultStats() Stats {
	return Stats{
		Health:       30,
		IdleFor:      2 * time.Second,
		PatrolSpeed:  1,
		AttackRange:  1.5,
		AttackDamage: 4,
		Cooldown:     500 * time.Millisecond,
		Swings:       3,
		GiveUpAfter:  5 * time.Second,
		Route:        Route{"gate", "well", "tower"},
	}
}

// Route is an ordered list of waypoints
type Route []string

// body is shared by all states of one NPC
type body struct {
	health int
	dealt  int
}

// vulnerable handles Damaged for every living state
type vulnerable struct {
	body *body
}

func (v vulnerable) damaged(e Damaged) tickfsm.Transition {
	v.body.health -= e.Amount
	if v.body.health > 0 {
		return nil
	}
	return tickfsm.To(StateDead, tickfsm.WithOrder(orderDeath))
}

// Brain wires the NPC states into a machine
type Brain struct {
	m    *tickfsm.Machine
	body *body
}

// New registers the NPC states on m and enters idle
func New(m *tickfsm.Machine, stats Stats) (*Brain, error) {
	b := &body{health: stats.Health}
	v := vulnerable{body: b}

	states := []tickfsm.State{
		&idle{vulnerable: v, stats: stats},
		&patrol{vulnerable: v, stats: stats},
		&chase{vulnerable: v, stats: stats},
		&attack{vulnerable: v, body: b, stats: stats},
		&dead{},
	}
	for _, s := range states {
		if err := m.RegisterState(s); err != nil {
			return nil, fmt.Errorf("register npc state: %w", err)
		}
	}
	if err := m.ChangeState(StateIdle); err != nil {
		return nil, err
	}
	return &Brain{m: m, body: b}, nil
}

// Spot reports the player at the given distance
func (b *Brain) Spot(distance float64) error {
	return tickfsm.SendEvent(b.m, PlayerSpotted{Distance: distance})
}

// Lose reports that the player is out of sight
func (b *Brain) Lose() error {
	return tickfsm.Signal[PlayerLost](b.m)
}

// Hit deals damage to the NPC
func (b *Brain) Hit(amount int) error {
	return tickfsm.SendEvent(b.m, Damaged{Amount: amount})
}

// Health returns the remaining health
func (b *Brain) Health() int {
	return b.body.health
}

// DamageDealt returns the damage the NPC has done so far
func (b *Brain) DamageDealt() int {
	return b.body.dealt
}

// State returns the active state
func (b *Brain) State() tickfsm.StateID {
	return b.m.CurrentState()
}
