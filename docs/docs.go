// Package docs PawSaarthi Rescue API.
//
// Documentation of the PawSaarthi Rescue API.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//
//     Consumes:
//     - application/json
//     - multipart/form-data
//
//     Produces:
//     - application/json
//
//     Security:
//     - basic
//     - bearer
//
//    SecurityDefinitions:
//    basic:
//      type: basic
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/models"
	"github.com/pawsaarthi/rescue-api/payment"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route POST /api/v1/auth/token auth createToken
// Issues a bearer token for an email and password sent with basic auth.
// responses:
//   200: tokenResponse

// A signed token and the role it was issued for
// swagger:response tokenResponse
type tokenResponseWrapper struct {
	// in:body
	Body api.TokenResponse
}

// swagger:route GET /api/v1/ngo/nearby rescue nearbyRescues
// Lists reported rescues an approved NGO can still accept, nearest first.
// responses:
//   200: caseListResponse

// swagger:route GET /api/v1/hospital/escalated rescue escalatedRescues
// Lists escalated rescues within the hospital radius, nearest first.
// responses:
//   200: caseListResponse

// Rescue cases with their distance in km from the caller
// swagger:response caseListResponse
type caseListResponseWrapper struct {
	// in:body
	Body models.CaseListResponse
}

// swagger:route GET /api/v1/user/wallet wallet walletByUser
// Shows the wallet balance and ledger of the calling citizen.
// responses:
//   200: walletResponse

// The wallet balance and its ledger entries, newest first
// swagger:response walletResponse
type walletResponseWrapper struct {
	// in:body
	Body models.WalletResponse
}

// swagger:route POST /api/v1/payment/create-order payment createOrder
// Opens a wallet top-up payment intent.
// responses:
//   200: topUpResponse

// The payment intent the client confirms with Stripe
// swagger:response topUpResponse
type topUpResponseWrapper struct {
	// in:body
	Body payment.TopUpOrder
}
