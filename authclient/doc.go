// Package authclient implements authguard.Authenticator over HTTP/JSON.
//
// The token service exposes two endpoints:
//
//	POST /v1/login    {"identifier","password","totp_code"} -> {"user","token","expires_at"}
//	POST /v1/refresh  {"token"}                           -> {"token","expires_at"}
//
// Status codes are mapped onto the authguard error taxonomy. Returned errors
// are samber/oops errors carrying the endpoint and status, and they wrap the
// matching authguard sentinel so errors.Is keeps working.
package authclient
