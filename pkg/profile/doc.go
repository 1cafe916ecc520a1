/*
Package profile defines the profile driver interface and type registry.

A profile is a template describing how to realize one node; its type names
a Driver implementation that talks to the provisioning system. Drivers
initiate work and expose a "<VERB>_<STAGE>" status word which the node
executor polls until COMPLETE or FAILED. A verb mismatch between what the
executor expects and what the driver reports is a hard error.

Types are registered explicitly at startup through Registry; there is no
runtime plugin discovery. The built-in "stack" type realizes nodes as
template stacks against a simulated provisioning backend, which is also
what the tests drive.
*/
package profile
