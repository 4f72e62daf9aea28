// Package session keeps the cookie session shared by concurrent downloads.
//
// A Coordinator hands out shared permits to downloads and runs at most one
// login handshake at a time. Callers that ask for a login while one is
// running wait for it and share its result. A download that finds its
// session expired passes the generation of its permit to Refresh, so a
// login that already happened on its behalf is not repeated.
package session
