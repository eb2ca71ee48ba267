package models

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Role is the closed set of actor kinds known to the rescue workflow. It is
// stored as its wire name ("user", "ngo", ...) in both JSON and BSON.
type Role uint8

const (
	// RoleUnknown is the zero value and never grants any capability
	RoleUnknown Role = iota
	// RoleCitizen reports cases and owns a wallet
	RoleCitizen
	// RoleOrg is a volunteer organization that accepts or declines pending cases
	RoleOrg
	// RoleFacility is a hospital that dispatches its carriers to escalated cases
	RoleFacility
	// RoleCarrier is an ambulance that moves a case through transport
	RoleCarrier
	// RoleAdmin approves organizations and overrides cases
	RoleAdmin
	// RoleSystem is the synthetic identity of scheduled jobs. It cannot be registered.
	RoleSystem
)

var roleNames = map[Role]string{
	RoleCitizen:  "user",
	RoleOrg:      "ngo",
	RoleFacility: "hospital",
	RoleCarrier:  "ambulance",
	RoleAdmin:    "admin",
	RoleSystem:   "system",
}

// String returns the wire name of the role
func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return "unknown"
}

// ParseRole maps a wire name to a Role
func ParseRole(s string) (Role, error) {
	for r, n := range roleNames {
		if n == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// RequiresApproval reports whether accounts of this role must be approved by
// an admin before they can see or mutate cases
func (r Role) RequiresApproval() bool {
	return r == RoleOrg || r == RoleFacility || r == RoleCarrier
}

// Registrable reports whether the role may be chosen at self registration
func (r Role) Registrable() bool {
	return r == RoleCitizen || r.RequiresApproval()
}

// MarshalJSON implements json.Marshaler
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler
func (r Role) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(r.String())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (r *Role) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	s, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("role must be a string, got %s", t)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
