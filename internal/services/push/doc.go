// Package push registers browser push subscriptions and delivers
// notifications to them.
//
// Dispatch fans out one attempt per active subscription and waits for every
// attempt to settle. Each attempt is classified:
//
//   - success: 2xx from the push service
//   - permanent: 404/410 (endpoint gone) or 401/403 (credential rejected);
//     the subscription is removed
//   - transient: everything else, including network errors and timeouts;
//     the subscription is kept and the next trigger retries naturally
//
// A misconfigured signing credential disables every dispatch without any
// network I/O until the process is restarted with a corrected configuration.
package push
