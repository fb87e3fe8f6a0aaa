package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff grows from p.InitialInterval by p.Multiplier up to
// p.MaxInterval. It never stops on elapsed time; bound it with
// backoff.WithMaxRetries or a context.
func ExponentialBackoff(p Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.MaxElapsedTime = 0
	return exp
}

// ConstantBackoff waits the same interval between every attempt and never
// gives up on its own.
func ConstantBackoff(interval time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(interval)
}
