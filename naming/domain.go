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

package naming // import "github.com/lightstep/otel-netmetrics-go/naming"

import (
	"fmt"
	"strings"
)

// Domain is a family of metrics produced by one facade.
type Domain uint8

const (
	NetServer Domain = iota
	NetClient
	HTTPServer
	HTTPClient
	DatagramSocket
	EventBus
	NamedPools
	Verticles

	numDomains
)

var domainCategories = [numDomains]string{
	NetServer:      "net.server",
	NetClient:      "net.client",
	HTTPServer:     "http.server",
	HTTPClient:     "http.client",
	DatagramSocket: "datagram",
	EventBus:       "eventbus",
	NamedPools:     "pool",
	Verticles:      "verticle",
}

var domainNames = [numDomains]string{
	NetServer:      "NET_SERVER",
	NetClient:      "NET_CLIENT",
	HTTPServer:     "HTTP_SERVER",
	HTTPClient:     "HTTP_CLIENT",
	DatagramSocket: "DATAGRAM_SOCKET",
	EventBus:       "EVENT_BUS",
	NamedPools:     "NAMED_POOLS",
	Verticles:      "VERTICLES",
}

// Category is the dotted component used in metric names.
func (d Domain) Category() string {
	if d >= numDomains {
		return ""
	}
	return domainCategories[d]
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d < numDomains
}

func (d Domain) String() string {
	if d >= numDomains {
		return fmt.Sprintf("Domain(%d)", uint8(d))
	}
	return domainNames[d]
}

// ParseDomain accepts the constant name ("HTTP_SERVER") or the
// category ("http.server"), case-insensitively.
func ParseDomain(s string) (Domain, error) {
	for d := Domain(0); d < numDomains; d++ {
		if strings.EqualFold(s, domainNames[d]) || strings.EqualFold(s, domainCategories[d]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown metrics domain: %q", s)
}

// AllDomains returns every known domain.
func AllDomains() []Domain {
	out := make([]Domain, numDomains)
	for i := range out {
		out[i] = Domain(i)
	}
	return out
}
