package models

import "time"

// User holds the structure for the user collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in the user collection in mongo.
// Org fields are empty for citizens and admins.
type UserDetails struct {
	Name     string `json:"name" bson:"name"`
	Email    string `json:"email" bson:"email"`
	Password string `json:"-" bson:"password"`
	Role     Role   `json:"role" bson:"role"`
	Approved bool   `json:"isApproved" bson:"isApproved"`
	Phone    string `json:"phone" bson:"phone"`

	// WalletBalance is a cache of the sum of the user's ledger entries
	WalletBalance int64 `json:"walletBalance" bson:"walletBalance"`

	HomeLocation *Location `json:"location" bson:"location"`
	OrgName      string    `json:"orgName" bson:"orgName"`
	RegNumber    string    `json:"regNumber" bson:"regNumber"`
	Address      string    `json:"address" bson:"address"`
	Capacity     int       `json:"capacity" bson:"capacity"`

	LinkedFacility *string `json:"linkedHospital" bson:"linkedHospital"`
	VehicleNumber  string  `json:"vehicleNumber" bson:"vehicleNumber"`
	Available      bool    `json:"isAvailable" bson:"isAvailable"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// DisplayName prefers the organization name when one is set
func (u User) DisplayName() string {
	if u.Details.OrgName != "" {
		return u.Details.OrgName
	}
	return u.Details.Name
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	Name          *string   `json:"name" validate:"omitempty,min=1,max=100"`
	Phone         *string   `json:"phone" validate:"omitempty,max=20"`
	HomeLocation  *Location `json:"location"`
	OrgName       *string   `json:"orgName" validate:"omitempty,max=200"`
	Address       *string   `json:"address" validate:"omitempty,max=300"`
	VehicleNumber *string   `json:"vehicleNumber" validate:"omitempty,max=20"`
	Capacity      *int      `json:"capacity" validate:"omitempty,min=0"`
}
