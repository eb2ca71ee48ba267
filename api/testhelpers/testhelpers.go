// Package testhelpers seeds stores with a standard cast of users for tests
package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/models"
)

// Password is the plain text password of every seeded user
const Password = "s3cret-pass"

// Seeded user ids
const (
	Citizen      = "cit-1"
	OtherCitizen = "cit-2"
	Org          = "ngo-1"
	PendingOrg   = "ngo-2"
	Facility     = "hosp-1"
	Carrier      = "amb-1"
	Admin        = "adm-1"
)

// Home is the home location of the seeded org. The facility sits about
// 0.7 km north of it.
var Home = models.Location{Lat: 28.6139, Lng: 77.2090, Address: "Connaught Place"}

// Email returns the seeded email of id
func Email(id string) string {
	return id + "@pawsaarthi.test"
}

// SeedUsers inserts the standard users and returns them by id
func SeedUsers(t *testing.T, users databases.UserDatabase) map[string]*models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	home := Home
	facility := Facility
	facilityHome := models.Location{Lat: 28.6200, Lng: Home.Lng}
	roster := []models.User{
		{ID: Citizen, Details: models.UserDetails{Name: "Asha", Role: models.RoleCitizen, Approved: true}},
		{ID: OtherCitizen, Details: models.UserDetails{Name: "Ravi", Role: models.RoleCitizen, Approved: true}},
		{ID: Org, Details: models.UserDetails{Name: "Paws NGO", OrgName: "Paws NGO", Role: models.RoleOrg, Approved: true, HomeLocation: &home}},
		{ID: PendingOrg, Details: models.UserDetails{Name: "New NGO", OrgName: "New NGO", Role: models.RoleOrg}},
		{ID: Facility, Details: models.UserDetails{Name: "City Vet", OrgName: "City Vet Hospital", Role: models.RoleFacility, Approved: true, HomeLocation: &facilityHome}},
		{ID: Carrier, Details: models.UserDetails{Name: "Unit 7", Role: models.RoleCarrier, Approved: true, Available: true, LinkedFacility: &facility, VehicleNumber: "DL01AB1234"}},
		{ID: Admin, Details: models.UserDetails{Name: "Admin", Role: models.RoleAdmin, Approved: true}},
	}
	out := make(map[string]*models.User, len(roster))
	for i := range roster {
		u := roster[i]
		u.Details.Email = Email(u.ID)
		u.Details.Password = string(hash)
		require.NoError(t, users.Insert(context.Background(), &u))
		stored, err := users.FindByID(context.Background(), u.ID)
		require.NoError(t, err)
		out[u.ID] = stored
	}
	return out
}
