// Package ftp retrieves single files from FTP servers over raw sockets.
//
// A retrieval logs in (anonymous by default), changes into the file's
// directory, enters passive mode and issues RETR. The data connection is
// read until the server closes it. Only passive mode is supported and the
// data connection always goes to the control host.
package ftp
