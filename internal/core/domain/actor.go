package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActorKind distinguishes human-attributed mutations from engine-driven ones.
type ActorKind string

const (
	ActorUser   ActorKind = "USER"
	ActorSystem ActorKind = "SYSTEM"
)

// Actor identifies who performed a mutation. Engine-driven transitions
// (retention release, payment callbacks) are attributed to the system actor
// so audit queries can distinguish real users from synthetic ones.
type Actor struct {
	Kind   ActorKind `json:"kind"`
	UserID string    `json:"userID,omitempty"`
}

// UserActor returns an actor for the given user ID.
func UserActor(userID string) Actor {
	return Actor{Kind: ActorUser, UserID: userID}
}

// SystemActor is the actor for unattributed engine-driven mutations.
func SystemActor() Actor {
	return Actor{Kind: ActorSystem}
}

// IsSystem reports whether the actor is the synthetic system actor.
func (a Actor) IsSystem() bool {
	return a.Kind == ActorSystem
}

// String renders the actor in the "user:<id>" / "system" form used in the
// created_by columns.
func (a Actor) String() string {
	if a.Kind == ActorSystem {
		return "system"
	}
	return "user:" + a.UserID
}

// ParseActor parses the persisted string form back into an Actor.
func ParseActor(s string) (Actor, error) {
	if s == "system" {
		return SystemActor(), nil
	}
	if id, ok := strings.CutPrefix(s, "user:"); ok && id != "" {
		return UserActor(id), nil
	}
	return Actor{}, fmt.Errorf("malformed actor %q", s)
}

// MarshalJSON renders the compact string form so API payloads and audit rows
// agree on the representation.
func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseActor(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
