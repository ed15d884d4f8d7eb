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

// Package naming maps logical metric roles to concrete metric names.
// The table is a value: deployments rename metrics by building their
// own Names rather than by patching call sites.
package naming // import "github.com/lightstep/otel-netmetrics-go/naming"

import (
	"fmt"
	"strings"
)

// Role identifies one metric produced by a facade.
type Role uint8

const (
	HTTPActiveWsConnections Role = iota
	HTTPActiveRequests
	HTTPRequestsCount
	HTTPRequestResetsCount
	HTTPRequestBytes
	HTTPResponseTime
	HTTPResponseBytes

	NetActiveConnections
	NetBytesRead
	NetBytesWritten
	NetErrorCount

	numRoles
)

// DefaultRoot prefixes every default base name.
const DefaultRoot = "netmetrics"

// Names is the naming table.  The zero value has no names; use
// DefaultNames or PrometheusNames.
type Names struct {
	root  string
	sep   string
	base  string
	roles [numRoles]string
}

// DefaultNames uses dotted OpenTelemetry-style names, for example
// netmetrics.http.server.requests.
func DefaultNames() Names {
	return Names{
		root: DefaultRoot,
		sep:  ".",
		roles: [numRoles]string{
			HTTPActiveWsConnections: "active.ws.connections",
			HTTPActiveRequests:      "active.requests",
			HTTPRequestsCount:       "requests",
			HTTPRequestResetsCount:  "request.resets",
			HTTPRequestBytes:        "request.bytes",
			HTTPResponseTime:        "response.time",
			HTTPResponseBytes:       "response.bytes",
			NetActiveConnections:    "active.connections",
			NetBytesRead:            "bytes.read",
			NetBytesWritten:         "bytes.written",
			NetErrorCount:           "errors",
		},
	}
}

// PrometheusNames uses underscore separated names, for example
// netmetrics_http_server_requests.  Exporters add unit and _total
// suffixes themselves.
func PrometheusNames() Names {
	n := DefaultNames()
	n.sep = "_"
	for i, r := range n.roles {
		n.roles[i] = strings.ReplaceAll(r, ".", "_")
	}
	return n
}

// WithRoot replaces the leading component of every base name.
func (n Names) WithRoot(root string) Names {
	n.root = root
	return n
}

// WithName renames one role.
func (n Names) WithName(r Role, name string) Names {
	if r < numRoles {
		n.roles[r] = name
	}
	return n
}

// WithBaseName returns a copy whose names are all prefixed by base.
func (n Names) WithBaseName(base string) Names {
	n.base = base
	return n
}

// ForDomain returns a copy prefixed with the base name of d.
func (n Names) ForDomain(d Domain) Names {
	return n.WithBaseName(n.BaseName(d))
}

// BaseName returns the prefix used for domain d, including the
// trailing separator.
func (n Names) BaseName(d Domain) string {
	cat := d.Category()
	if n.sep != "." {
		cat = strings.ReplaceAll(cat, ".", n.sep)
	}
	if n.root == "" {
		return cat + n.sep
	}
	return n.root + n.sep + cat + n.sep
}

// Name returns the full metric name for r.
func (n Names) Name(r Role) string {
	if r >= numRoles {
		return ""
	}
	return n.base + n.roles[r]
}

// DomainOf infers the domain of a metric name from its prefix.
func (n Names) DomainOf(name string) (Domain, bool) {
	var (
		best    Domain
		bestLen int
	)
	for d := Domain(0); d < numDomains; d++ {
		b := n.BaseName(d)
		if strings.HasPrefix(name, b) && len(b) > bestLen {
			best, bestLen = d, len(b)
		}
	}
	return best, bestLen > 0
}

// Validate reports roles with no name.
func (n Names) Validate() error {
	var missing []string
	for r := Role(0); r < numRoles; r++ {
		if n.roles[r] == "" {
			missing = append(missing, r.String())
		}
	}
	if len(missing) != 0 {
		return fmt.Errorf("metric names missing for: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r Role) String() string {
	switch r {
	case HTTPActiveWsConnections:
		return "HTTPActiveWsConnections"
	case HTTPActiveRequests:
		return "HTTPActiveRequests"
	case HTTPRequestsCount:
		return "HTTPRequestsCount"
	case HTTPRequestResetsCount:
		return "HTTPRequestResetsCount"
	case HTTPRequestBytes:
		return "HTTPRequestBytes"
	case HTTPResponseTime:
		return "HTTPResponseTime"
	case HTTPResponseBytes:
		return "HTTPResponseBytes"
	case NetActiveConnections:
		return "NetActiveConnections"
	case NetBytesRead:
		return "NetBytesRead"
	case NetBytesWritten:
		return "NetBytesWritten"
	case NetErrorCount:
		return "NetErrorCount"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}
