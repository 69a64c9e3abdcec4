/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package ratelimit throttles outgoing HTTP requests.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// minInterval is the shortest time between two requests, regardless of the
// configured rate.
const minInterval = 100 * time.Millisecond

// Limit describes a rate limit.
type Limit struct {
	RequestsPerHour int
	BurstSize       int
}

// Limiter hands out request tokens at a steady rate. Unused tokens
// accumulate up to the burst size.
type Limiter struct {
	ticker   *time.Ticker
	token    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New returns a Limiter that enforces l. If l.RequestsPerHour is not
// positive, there is no limit and New returns nil; a nil Limiter is valid.
func New(l Limit) *Limiter {
	if l.RequestsPerHour <= 0 {
		return nil
	}

	reqInterval := time.Duration(float64(time.Hour) / float64(l.RequestsPerHour))
	if reqInterval < minInterval {
		reqInterval = minInterval
	}

	lim := &Limiter{
		ticker: time.NewTicker(reqInterval),
		token:  make(chan struct{}, max(l.BurstSize, 1)),
		done:   make(chan struct{}),
	}
	for range cap(lim.token) {
		lim.token <- struct{}{}
	}

	go func() {
		for {
			select {
			case <-lim.ticker.C:
				select {
				case lim.token <- struct{}{}:
				default:
				}
			case <-lim.done:
				return
			}
		}
	}()

	return lim
}

// Stop releases the resources of the limiter.
func (lim *Limiter) Stop() {
	if lim == nil {
		return
	}
	lim.stopOnce.Do(func() {
		lim.ticker.Stop()
		close(lim.done)
	})
}

// RoundTripper wraps rt so that every request first waits for a token.
func (lim *Limiter) RoundTripper(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if lim == nil {
		return rt
	}
	return rateLimitedRoundTripper{RoundTripper: rt, token: lim.token}
}

type rateLimitedRoundTripper struct {
	http.RoundTripper
	token <-chan struct{}
}

func (rt rateLimitedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-rt.token:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	return rt.RoundTripper.RoundTrip(req)
}
