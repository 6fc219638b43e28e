package npc

import (
	"time"

	"github.com/librescoot/tickfsm"
)

const (
	keyPatrol tickfsm.TransitionKey = "patrol"
	keyChase  tickfsm.TransitionKey = "chase"
	keyIdle   tickfsm.TransitionKey = "idle"
)

type idle struct {
	vulnerable
	stats  Stats
	waited time.Duration
	cache  tickfsm.TransitionCache
}

func (s *idle) ID() tickfsm.StateID { return StateIdle }

func (s *idle) Enter() {
	s.waited = 0
}

func (s *idle) Tick(dt time.Duration) tickfsm.Transition {
	s.waited += dt
	if s.waited < s.stats.IdleFor {
		return nil
	}
	return s.cache.Get(keyPatrol, func() tickfsm.Transition {
		return tickfsm.ToWith(StatePatrol, s.stats.Route)
	})
}

func (s *idle) EventHandlers() []tickfsm.EventHandler {
	return []tickfsm.EventHandler{
		tickfsm.On(s.playerSpotted),
		tickfsm.On(s.damaged),
	}
}

func (s *idle) playerSpotted(PlayerSpotted) tickfsm.Transition {
	return s.cache.Get(keyChase, func() tickfsm.Transition {
		return tickfsm.To(StateChase, tickfsm.WithOrder(orderReact))
	})
}

type patrol struct {
	vulnerable
	stats    Stats
	route    Route
	progress float64
	cache    tickfsm.TransitionCache
}

func (s *patrol) ID() tickfsm.StateID { return StatePatrol }

func (s *patrol) Enter(route Route) {
	s.route = route
	s.progress = 0
}

// Waypoint returns the waypoint the NPC is heading to
func (s *patrol) Waypoint() string {
	i := int(s.progress)
	if i >= len(s.route) {
		return ""
	}
	return s.route[i]
}

func (s *patrol) Tick(dt time.Duration) tickfsm.Transition {
	s.progress += s.stats.PatrolSpeed * dt.Seconds()
	if int(s.progress) < len(s.route) {
		return nil
	}
	return s.cache.Get(keyIdle, func() tickfsm.Transition {
		return tickfsm.To(StateIdle, tickfsm.WithOrder(orderRoutine))
	})
}

func (s *patrol) EventHandlers() []tickfsm.EventHandler {
	return []tickfsm.EventHandler{
		tickfsm.On(s.playerSpotted),
		tickfsm.On(s.damaged),
	}
}

func (s *patrol) playerSpotted(PlayerSpotted) tickfsm.Transition {
	return s.cache.Get(keyChase, func() tickfsm.Transition {
		return tickfsm.To(StateChase, tickfsm.WithOrder(orderReact))
	})
}

type chase struct {
	vulnerable
	stats    Stats
	distance float64
	unseen   time.Duration
	cache    tickfsm.TransitionCache
}

func (s *chase) ID() tickfsm.StateID { return StateChase }

func (s *chase) Enter() {
	s.unseen = 0
}

func (s *chase) Tick(dt time.Duration) tickfsm.Transition {
	s.unseen += dt
	if s.unseen < s.stats.GiveUpAfter {
		return nil
	}
	return s.cache.Get(keyIdle, func() tickfsm.Transition {
		return tickfsm.To(StateIdle)
	})
}

func (s *chase) EventHandlers() []tickfsm.EventHandler {
	return []tickfsm.EventHandler{
		tickfsm.On(s.playerSpotted),
		tickfsm.On(s.playerLost),
		tickfsm.On(s.damaged),
	}
}

func (s *chase) playerLost(PlayerLost) tickfsm.Transition {
	return s.cache.Get(keyIdle, func() tickfsm.Transition {
		return tickfsm.To(StateIdle)
	})
}

func (s *chase) playerSpotted(e PlayerSpotted) tickfsm.Transition {
	s.distance = e.Distance
	s.unseen = 0
	if e.Distance > s.stats.AttackRange {
		return nil
	}
	// The swing damage depends on how close the player is, so the attack
	// state is configured right before it is entered.
	distance := e.Distance
	return tickfsm.TransitionFunc(orderEngage, func(c tickfsm.Changer) error {
		return tickfsm.Configure(c, StateAttack, func(a *attack) error {
			a.Damage = s.stats.AttackDamage
			if distance < s.stats.AttackRange/2 {
				a.Damage *= 2
			}
			return nil
		})
	})
}

type attack struct {
	vulnerable
	body   *body
	stats  Stats
	cache  tickfsm.TransitionCache
	charge time.Duration
	swings int

	// Damage is set by whoever switches into the state
	Damage int
}

func (s *attack) ID() tickfsm.StateID { return StateAttack }

func (s *attack) Enter() {
	s.charge = 0
	s.swings = 0
}

func (s *attack) Exit() {
	s.Damage = 0
}

func (s *attack) Tick(dt time.Duration) tickfsm.Transition {
	s.charge += dt
	for s.charge >= s.stats.Cooldown && s.swings < s.stats.Swings {
		s.charge -= s.stats.Cooldown
		s.swings++
		s.body.dealt += s.Damage
	}
	if s.swings < s.stats.Swings {
		return nil
	}
	return s.cache.Get(keyChase, func() tickfsm.Transition {
		return tickfsm.To(StateChase)
	})
}

func (s *attack) EventHandlers() []tickfsm.EventHandler {
	return []tickfsm.EventHandler{
		tickfsm.On(s.playerLost),
		tickfsm.On(s.damaged),
	}
}

func (s *attack) playerLost(PlayerLost) tickfsm.Transition {
	return s.cache.Get(keyIdle, func() tickfsm.Transition {
		return tickfsm.To(StateIdle, tickfsm.WithOrder(orderReact))
	})
}

type dead struct{}

func (s *dead) ID() tickfsm.StateID { return StateDead }
