// package session resolves who the current user is.
//
// A page load (or CLI invocation) is turned into a [Session] by the [Bootstrapper]:
//
//  1. [Bootstrapper.Hydrate] reads the stored session through a [Store].
//  2. [Detect] looks for OAuth callback parameters.
//  3. [Bootstrapper.BeginExchange] trades the code for a session, guarded by a [Guard]
//     so a redirect delivered twice is only exchanged once.
//
// New sessions are announced on a [Bus]. Guard and store implementations backed by
// SQLite and Redis live in the repositories package.
package session
