// Package ratelimit defines the admission-control seam in front of the batch
// generator's buffer. The default implementation wraps golang.org/x/time/rate;
// a zero rate means unlimited admission.
package ratelimit
