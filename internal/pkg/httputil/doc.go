// Package httputil provides shared HTTP response helpers so every handler
// writes the same JSON envelope and error shape.
package httputil
