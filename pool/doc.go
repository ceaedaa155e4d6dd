// Package pool
// Author: momentics <momentics@gmail.com>
//
// Connection buffer memory. BytePool recycles fixed-size slices per size
// class and ByteBuffer stages the bytes of one Connection on top of it,
// growing past the pooled size only up to a configured cap.
package pool
