// Copyright Lightstep Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lifecycle tracks one request/response exchange.
//
// The two end signals of an exchange may arrive in either order, on
// different goroutines, and may race with a reset.  State decides,
// with a single compare-and-swap per signal, which arrival releases
// the exchange's in-flight slot so that exactly one does.
package lifecycle // import "github.com/lightstep/otel-netmetrics-go/lifecycle"

import (
	"fmt"
	"sync/atomic"
)

const (
	flagRequestEnded uint32 = 1 << iota
	flagResponseEnded
	flagReset

	flagsEnded = flagRequestEnded | flagResponseEnded
)

// Phase is a snapshot of an exchange's progress.
type Phase uint8

const (
	Active Phase = iota
	RequestEnded
	ResponseEnded
	Completed
	Reset
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case RequestEnded:
		return "request-ended"
	case ResponseEnded:
		return "response-ended"
	case Completed:
		return "completed"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// Terminal reports whether the exchange's in-flight slot has been
// given back.
func (p Phase) Terminal() bool {
	return p == Completed || p == Reset
}

// Transition is the outcome of an end signal.
type Transition struct {
	// First is set on the first arrival of the signal, whether or not
	// the exchange was reset.  Only first arrivals record metrics.
	First bool
	// Release is set when this arrival completed an exchange that was
	// not reset.  The caller gives back the in-flight slot.
	Release bool
}

// State is the lifecycle state of one exchange.  The zero value is
// Active.  All methods are safe for concurrent use.
type State struct {
	flags atomic.Uint32
}

// Reset aborts the exchange.  It returns true when the caller must
// release the in-flight slot: the exchange was neither reset nor
// completed.  End signals after a reset still record once each but
// never release the slot again.
func (s *State) Reset() bool {
	for {
		old := s.flags.Load()
		if old&flagReset != 0 || old&flagsEnded == flagsEnded {
			return false
		}
		if s.flags.CompareAndSwap(old, old|flagReset) {
			return true
		}
	}
}

// EndRequest marks the request side complete.
func (s *State) EndRequest() Transition {
	return s.end(flagRequestEnded)
}

// EndResponse marks the response side complete.
func (s *State) EndResponse() Transition {
	return s.end(flagResponseEnded)
}

func (s *State) end(flag uint32) Transition {
	for {
		old := s.flags.Load()
		if old&flag != 0 {
			return Transition{}
		}
		next := old | flag
		if s.flags.CompareAndSwap(old, next) {
			return Transition{
				First:   true,
				Release: next&flagReset == 0 && next&flagsEnded == flagsEnded,
			}
		}
	}
}

// Ended reports which end signals have arrived, regardless of reset.
func (s *State) Ended() (request, response bool) {
	f := s.flags.Load()
	return f&flagRequestEnded != 0, f&flagResponseEnded != 0
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	f := s.flags.Load()
	switch {
	case f&flagReset != 0:
		return Reset
	case f&flagsEnded == flagsEnded:
		return Completed
	case f&flagRequestEnded != 0:
		return RequestEnded
	case f&flagResponseEnded != 0:
		return ResponseEnded
	}
	return Active
}
