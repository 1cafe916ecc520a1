/*
Package errdefs defines the error taxonomy shared by all Corral packages.

Each failure kind is a sentinel error plus a wrapping constructor and an
Is* predicate. A transport layer maps the kinds onto status codes: NotFound
to 404, Conflict to 409, ValidationFailed to 400, everything else to 500.
*/
package errdefs
