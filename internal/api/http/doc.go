// Package http provides the HTTP surface of the workspace server.
//
// Handlers exposes one route per workspace session operation under
// /workspaces/:user, plus the component registry and health endpoints.
// StoreHandlers serves a remote layout store under /store/users/:user,
// the API consumed by remote.Client.
//
// Domain errors map onto status codes in one place (statusFor):
// validation failures are 400, protected tabs and layouts 403, missing
// entities 404, duplicate names and stale writes 409.
package http
