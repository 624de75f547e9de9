// Package tender is the client for the Tender auth/directory service.
//
// The service authenticates accounts, lists the cookers registered to an
// account, names the account's default cooker and relays state changes to
// a cooker. Requests after authentication carry the account's API token in
// the X-Api-Token header.
//
// Any response body with a truthy "error" key is reported as ErrRemote,
// regardless of its status code.
package tender
