package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

// social replaces whichever of the friend and foe lists the message carries.
// Both lists are validated before either is applied.
func (d *Dispatcher) social(_ context.Context, sess *session.Session, msg protocol.Message) error {
	rawFriends, hasFriends := msg.Lookup("friends")
	rawFoes, hasFoes := msg.Lookup("foes")
	if !hasFriends && !hasFoes {
		return fmt.Errorf("%w: %q or %q", kephaslobby.ErrMissingField, "friends", "foes")
	}

	var friends, foes []string
	var err error
	if hasFriends {
		if friends, err = stringList("friends", rawFriends); err != nil {
			return err
		}
	}
	if hasFoes {
		if foes, err = stringList("foes", rawFoes); err != nil {
			return err
		}
	}

	if hasFriends {
		sess.SetFriends(friends)
	}
	if hasFoes {
		sess.SetFoes(foes)
	}
	return nil
}

func (d *Dispatcher) ladderMaps(_ context.Context, sess *session.Session, msg protocol.Message) error {
	raw, err := require(msg, "maps")
	if err != nil {
		return err
	}
	maps, err := intList("maps", raw)
	if err != nil {
		return err
	}
	sess.SetLadderMaps(maps)
	return nil
}

func (d *Dispatcher) faState(_ context.Context, sess *session.Session, msg protocol.Message) error {
	v, err := require(msg, "state")
	if err != nil {
		return err
	}
	before := sess.LaunchAction()
	after := sess.ApplyFAState(v)
	if before != after {
		d.log.Debug("launch state changed",
			zap.String("session", sess.ID()),
			zap.Stringer("from", before),
			zap.Stringer("to", after),
		)
	}
	return nil
}
