// Package textutil turns anime titles and content URLs into file names that
// are safe to hand to the backend as download targets.
package textutil
