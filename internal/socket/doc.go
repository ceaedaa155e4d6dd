// File: internal/socket/doc.go
// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin, platform-normalized socket primitives over raw OS descriptors.
// Every primitive reports the closed outcome set from package api
// (nil, ErrWouldBlock, ErrInProgress, ErrClosed, ErrTimeout, *api.OSError);
// OS error codes are translated here and nowhere else.

package socket
