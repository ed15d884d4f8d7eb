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

package lifecycle

import "strings"

// RouteSeparator joins the routes of an exchange that was routed more
// than once.
const RouteSeparator = '>'

type routesKind uint8

const (
	noRoutes routesKind = iota
	singleRoute
	multipleRoutes
)

// Routes accumulates the route names an exchange passed through.  The
// zero value is empty.  Routes is not safe for concurrent use; the
// signals of one exchange are sequential.
type Routes struct {
	kind   routesKind
	single string
	multi  []string
	// length of the joined string
	length int
	joined string
	cached bool
}

// Add appends route.  An empty route is ignored.
func (r *Routes) Add(route string) {
	if route == "" {
		return
	}
	r.length += len(route)
	switch r.kind {
	case noRoutes:
		r.kind = singleRoute
		r.single = route
		return
	case singleRoute:
		r.kind = multipleRoutes
		r.multi = []string{r.single, route}
		r.single = ""
	case multipleRoutes:
		r.multi = append(r.multi, route)
	}
	r.length++
	r.cached = false
}

// Len is the number of routes added.
func (r *Routes) Len() int {
	switch r.kind {
	case singleRoute:
		return 1
	case multipleRoutes:
		return len(r.multi)
	}
	return 0
}

// String joins the routes with RouteSeparator.  The result is cached
// until the next Add.
func (r *Routes) String() string {
	switch r.kind {
	case noRoutes:
		return ""
	case singleRoute:
		return r.single
	}
	if !r.cached {
		var sb strings.Builder
		sb.Grow(r.length)
		for i, s := range r.multi {
			if i > 0 {
				sb.WriteByte(RouteSeparator)
			}
			sb.WriteString(s)
		}
		r.joined = sb.String()
		r.cached = true
	}
	return r.joined
}
