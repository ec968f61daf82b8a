// Package authtest provides an in-memory authentication service and a manual
// clock for exercising an authguard Store in tests.
package authtest
