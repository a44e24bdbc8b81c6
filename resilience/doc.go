// Package resilience holds the retry policy used by the HTTP transport.
//
// A RetryPolicy separates three kinds of retryable outcome. Connection
// failures happen before the server sees the request and are retried for
// any method. Read failures and retryable statuses happen after the server
// has seen the request and are retried only for idempotent methods. All
// three draw from the same MaxRetries budget.
//
//	resp, err := resilience.Retry(ctx, resilience.DefaultRetryPolicy(),
//	    resilience.Operation[*http.Response]{Method: req.Method, Classify: classify},
//	    func(ctx context.Context, attempt int) (*http.Response, error) {
//	        return client.Do(req.WithContext(ctx))
//	    })
package resilience
