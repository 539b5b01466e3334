// Package authstate propagates the authentication state of a server
// rendered interactive application from the server render to the client
// render.
//
// Server side:
//   - ServerStateProvider holds the current AuthenticationState, published
//     through SetAuthenticationState. RunRevalidation checks it on a fixed
//     interval and compares the principal security stamp with the one in
//     the IdentityStore. A principal that fails is signed out.
//   - While a PersistentState runs Persist, the provider writes a
//     UserSnapshot of the signed in user under SnapshotKey. Anonymous
//     principals write nothing.
//
// Client side:
//   - ClientStateProvider takes the snapshot from a restored
//     PersistentState once and rebuilds a Principal with the subject, name,
//     email, first name, last name and role claims.
//
// Activity sinks:
//   - ActivitySink receives revalidation and snapshot events. Sinks run best
//     effort, errors are logged and never change the outcome.
package authstate
