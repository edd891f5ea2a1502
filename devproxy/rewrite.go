package devproxy

import (
	"fmt"
	"regexp"
)

// Rewrite replaces the first match of Pattern in the request path
type Rewrite struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// StripPrefix removes prefix from the start of the path
func StripPrefix(prefix string) *Rewrite {
	return &Rewrite{Pattern: "^" + regexp.QuoteMeta(NormalizePrefix(prefix))}
}

func (r *Rewrite) compile() (*regexp.Regexp, error) {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rewrite pattern %q: %w", r.Pattern, err)
	}
	return re, nil
}

type compiledRewrite struct {
	re          *regexp.Regexp
	replacement string
}

// apply rewrites path. An empty result becomes "/".
func (c *compiledRewrite) apply(path string) string {
	loc := c.re.FindStringSubmatchIndex(path)
	if loc != nil {
		var out []byte
		out = append(out, path[:loc[0]]...)
		out = c.re.ExpandString(out, c.replacement, path, loc)
		out = append(out, path[loc[1]:]...)
		path = string(out)
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return path
}
