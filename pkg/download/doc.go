// Package download runs a batch of SRTM1 tile downloads on a bounded worker
// pool.
//
// Each tile task requests its archive URL with the session cookies, follows
// redirects, and saves the response once the URL names a data file. A
// redirect to the login page makes the task refresh the shared session once
// and retry. Task failures are logged and reported in the Result; they never
// stop the rest of the batch.
package download
