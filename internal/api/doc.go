// Package api provides the certificate generation REST API.
//
// Routes under the API prefix (default /api/v1) require the X-API-Key header
// when API_KEY is configured. Health, metrics and documentation endpoints are
// always open.
package api
