// Package services implements the clients for the imgx backend on top of a single [APIService].
//
// # Request Client
//
// Every call goes through [APIService.Do]. Each request names a [Tier] that selects its
// timeout budget:
//   - [TierShort]: health checks
//   - [TierStandard]: reads
//   - [TierLong]: writes and mutations
//   - [TierUpload]: multipart image submission
//
// The budget applies to each attempt separately.
//
// # Retries
//
// Only failures where no response arrived are retried. The default [RetryPolicy] makes at
// most three attempts and waits 2s then 4s between them. Any HTTP status, including 5xx,
// ends the request. Multipart bodies are encoded once so a retry sends identical bytes.
//
// # Credentials
//
// A [CredentialSource] supplies the bearer token. When it has none the request is sent
// unauthenticated. A 401 response calls [CredentialSource.Invalidate] before the error is
// returned, which clears the stored session and notifies its subscribers.
//
// # Errors
//
// Failures are returned as [*RequestError]. Its message comes from the response body's
// "message" field, then "error", then "request failed: <status>". Transport failures read
// "network unreachable". Use [errors.Is] with the shared sentinels:
//   - [shared.ErrNetworkUnreachable]
//   - [shared.ErrCredentialInvalid]
//   - [shared.ErrClientRejected]
//   - [shared.ErrServerFault]
//
// # Observability
//
// Observers receive every [Transition] of a request. [Metrics] is one such observer and
// exports Prometheus counters for outcomes, retries and credential rejections.
//
// # Endpoints
//
//   - [AuthService]: login, register, OAuth completion, logout and profile
//   - [ImageService]: convert, compress, crop and resize
//   - [HealthService]: /health and region detection
//   - [StatsService]: usage and quota
package services
