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

package match

import (
	"strings"
	"testing"

	"github.com/lightstep/otel-netmetrics-go/naming"
	"github.com/lightstep/otel-netmetrics-go/tags"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestRegexAliasesEverything(t *testing.T) {
	m, err := Compile(Match{Label: "remote", Type: Regex, Value: ".*", Alias: "_"})
	require.NoError(t, err)

	for _, v := range []string{"10.0.0.1:4321", "[::1]:80", ""} {
		require.Equal(t, "_", m.Apply(naming.HTTPServer, tags.Remote, v))
	}
	// other labels pass through
	require.Equal(t, "127.0.0.1:80", m.Apply(naming.HTTPServer, tags.Local, "127.0.0.1:80"))
}

func TestNoMatchPassesThrough(t *testing.T) {
	m, err := Compile(Match{Label: "path", Value: "/health", Alias: "health"})
	require.NoError(t, err)

	require.Equal(t, "health", m.Apply(naming.HTTPServer, tags.HTTPPath, "/health"))
	require.Equal(t, "/healthz", m.Apply(naming.HTTPServer, tags.HTTPPath, "/healthz"))

	var none *Matchers
	require.Equal(t, "/x", none.Apply(naming.HTTPServer, tags.HTTPPath, "/x"))
	require.Equal(t, 0, none.Len())
}

func TestRegexIsAnchored(t *testing.T) {
	m, err := Compile(Match{Label: "path", Type: Regex, Value: "/api/.+", Alias: "/api"})
	require.NoError(t, err)

	require.Equal(t, "/api", m.Apply(naming.HTTPServer, tags.HTTPPath, "/api/users"))
	// a partial match is not enough
	require.Equal(t, "/v1/api/users", m.Apply(naming.HTTPServer, tags.HTTPPath, "/v1/api/users"))

	// alternation stays inside the anchors
	m, err = Compile(Match{Label: "method", Type: Regex, Value: "GET|HEAD", Alias: "READ"})
	require.NoError(t, err)
	require.Equal(t, "READ", m.Apply(naming.HTTPServer, tags.HTTPMethod, "HEAD"))
	require.Equal(t, "XGET", m.Apply(naming.HTTPServer, tags.HTTPMethod, "XGET"))
	require.Equal(t, "HEADX", m.Apply(naming.HTTPServer, tags.HTTPMethod, "HEADX"))
}

func TestFirstMatchWins(t *testing.T) {
	m, err := Compile(
		Match{Label: "path", Type: Regex, Value: "/a.*", Alias: "first"},
		Match{Label: "path", Type: Regex, Value: "/ab.*", Alias: "second"},
	)
	require.NoError(t, err)
	require.Equal(t, "first", m.Apply(naming.HTTPServer, tags.HTTPPath, "/abc"))
	require.Equal(t, 2, m.Len())
}

func TestDomainRulesBeforeGlobal(t *testing.T) {
	m, err := Compile(
		Match{Label: "remote", Type: Regex, Value: ".*", Alias: "global"},
		Match{Domain: "HTTP_SERVER", Label: "remote", Type: Regex, Value: "10\\..*", Alias: "internal"},
		Match{Domain: "net.server", Label: "remote", Value: "1.2.3.4:5", Alias: "net"},
	)
	require.NoError(t, err)

	require.Equal(t, "internal", m.Apply(naming.HTTPServer, tags.Remote, "10.1.1.1:80"))
	require.Equal(t, "global", m.Apply(naming.HTTPServer, tags.Remote, "8.8.8.8:53"))
	require.Equal(t, "global", m.Apply(naming.NetServer, tags.Remote, "10.1.1.1:80"))
	require.Equal(t, "net", m.Apply(naming.NetServer, tags.Remote, "1.2.3.4:5"))
	require.Equal(t, "global", m.Apply(naming.HTTPClient, tags.Remote, "1.2.3.4:5"))
	require.Equal(t, "global", m.ApplyGlobal(tags.Remote, "10.1.1.1:80"))
	require.Equal(t, "/p", m.ApplyGlobal(tags.HTTPPath, "/p"))
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(
		Match{Label: "", Alias: "x"},
		Match{Label: "nope", Alias: "x"},
		Match{Label: "remote", Alias: ""},
		Match{Label: "remote", Type: "glob", Value: "*", Alias: "x"},
		Match{Label: "remote", Type: Regex, Value: "(", Alias: "x"},
		Match{Domain: "mars", Label: "remote", Alias: "x"},
		Match{Label: "remote", Value: "ok", Alias: "fine"},
	)
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 6)
	require.Contains(t, errs[0].Error(), "empty label")
	require.Contains(t, errs[1].Error(), "unknown label")
	require.Contains(t, errs[2].Error(), "empty alias")
	require.Contains(t, errs[3].Error(), "unknown match type")
	require.Contains(t, errs[4].Error(), "invalid pattern")
	require.Contains(t, errs[5].Error(), "unknown metrics domain")
}

func TestTypeIsCaseInsensitive(t *testing.T) {
	m, err := Compile(Match{Label: "CODE", Type: "REGEX", Value: "5..", Alias: "5xx"})
	require.NoError(t, err)
	require.Equal(t, "5xx", m.Apply(naming.HTTPServer, tags.HTTPCode, "503"))
}

func TestMatchString(t *testing.T) {
	s := Match{Label: "remote", Value: "x", Alias: "_"}.String()
	require.True(t, strings.HasPrefix(s, "*/remote equals"))
}
