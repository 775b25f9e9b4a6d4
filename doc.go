// Package auth provides the account service authentication core: credential
// checks against a bun backed user store, HS256 token issuance and
// validation, and a fiber HTTP surface for login, registration and the
// authenticated account endpoint.
//
// Tokens:
//   - TokenSigner issues and validates tokens for a single TokenConfig. The
//     payload carries the ordered ClaimSet built by BuildClaims plus iss, aud,
//     iat and exp. Validation checks the signature before any claim.
//   - Every validation failure surfaces to HTTP callers as ErrUnauthorized.
//     The precise reason is only kept for logs and the activity sink.
//
// Gateway:
//   - Auther composes a CredentialStore with a TokenService. Unknown emails
//     and wrong passwords produce the same error so accounts cannot be
//     enumerated.
//   - ErrorTranslator maps any error to the ApiError envelope. Internal
//     failures only carry diagnostics when running in development.
//
// Activity sinks:
//   - ActivitySink receives login, register and token rejection events. Sinks
//     run best effort, errors are logged and never fail the request.
package auth
