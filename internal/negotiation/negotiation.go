// Package negotiation holds the application state machine: which status an
// application moves to for a given action, and which party may perform it.
// It has no I/O; callers load a Snapshot, ask for the next Status and then
// persist it together with the matching credit reservation.
package negotiation

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition")

type Status string

const (
	StatusNone            Status = ""
	StatusPending         Status = "pending"
	StatusOffered         Status = "offered"
	StatusCounterProposed Status = "counter_proposed"
	StatusAccepted        Status = "accepted"
	StatusDeclined        Status = "declined"
	StatusCancelled       Status = "cancelled"
	StatusRemoved         Status = "removed"
)

// Terminal statuses accept no further price or status change, except that
// an accepted application can still be removed by the poster.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusCancelled, StatusRemoved:
		return true
	}
	return false
}

// Negotiable reports whether the price is still open.
func (s Status) Negotiable() bool {
	switch s {
	case StatusPending, StatusOffered, StatusCounterProposed:
		return true
	}
	return false
}

// Reserving reports whether an application in this status must hold
// exactly RequiredCredits(proposedPrice) against the worker.
func (s Status) Reserving() bool {
	switch s {
	case StatusOffered, StatusCounterProposed, StatusAccepted:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOffered, StatusCounterProposed, StatusAccepted, StatusDeclined, StatusCancelled, StatusRemoved:
		return true
	}
	return false
}

// Party is the side of the negotiation an actor stands on. PartyNone is
// also the "nobody has proposed yet" value of LastProposedBy.
type Party string

const (
	PartyNone   Party = ""
	PartyPoster Party = "poster"
	PartyWorker Party = "worker"
)

func (p Party) Counterparty() Party {
	switch p {
	case PartyPoster:
		return PartyWorker
	case PartyWorker:
		return PartyPoster
	}
	return PartyNone
}

func (p Party) Valid() bool {
	return p == PartyNone || p == PartyPoster || p == PartyWorker
}

// PartyOf resolves which side actorID is on.
func PartyOf(actorID, posterID, workerID string) Party {
	switch {
	case actorID == "":
		return PartyNone
	case actorID == posterID:
		return PartyPoster
	case actorID == workerID:
		return PartyWorker
	}
	return PartyNone
}

type Action string

const (
	ActionApply   Action = "apply"
	ActionHire    Action = "hire"
	ActionPropose Action = "propose"
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
	ActionRemove  Action = "remove"
)

// Snapshot is the part of an application the rules look at.
type Snapshot struct {
	Status         Status
	LastProposedBy Party
}

type TransitionError struct {
	From   Status
	Action Action
	Actor  Party
	Reason string
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	actor := string(e.Actor)
	if actor == "" {
		actor = "none"
	}
	return fmt.Sprintf("invalid transition: %s by %s from %s: %s", e.Action, actor, from, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Transition returns the status that follows action performed by actor.
func Transition(current Snapshot, action Action, actor Party) (Status, error) {
	reject := func(reason string) (Status, error) {
		return current.Status, &TransitionError{From: current.Status, Action: action, Actor: actor, Reason: reason}
	}
	if actor != PartyPoster && actor != PartyWorker {
		return reject("actor has no side")
	}

	switch action {
	case ActionApply:
		if current.Status != StatusNone {
			return reject("application already exists")
		}
		if actor != PartyWorker {
			return reject("only the worker applies")
		}
		return StatusPending, nil

	case ActionHire:
		if current.Status != StatusNone {
			return reject("application already exists")
		}
		if actor != PartyPoster {
			return reject("only the poster hires")
		}
		return StatusOffered, nil

	case ActionPropose:
		if !current.Status.Negotiable() {
			return reject("price is no longer negotiable")
		}
		return StatusCounterProposed, nil

	case ActionAccept:
		if !current.Status.Negotiable() {
			return reject("nothing to accept")
		}
		if current.LastProposedBy == PartyNone {
			return reject("no price has been proposed")
		}
		if current.LastProposedBy == actor {
			return reject("a party cannot accept its own proposal")
		}
		return StatusAccepted, nil

	case ActionDecline:
		if !current.Status.Negotiable() {
			return reject("nothing to decline")
		}
		return StatusDeclined, nil

	case ActionCancel:
		if !current.Status.Negotiable() {
			return reject("nothing to cancel")
		}
		if actor != PartyWorker {
			return reject("only the worker withdraws an application")
		}
		return StatusCancelled, nil

	case ActionRemove:
		if current.Status != StatusAccepted {
			return reject("only a hired worker can be removed")
		}
		if actor != PartyPoster {
			return reject("only the poster removes a hired worker")
		}
		return StatusRemoved, nil
	}
	return reject("unknown action")
}
