package devproxy

import (
	"slices"
	"strings"
)

// Aliases maps an import name to the module it stands for
type Aliases map[string]string

// Resolve follows aliases for name or for the package part of a deep import
// such as "vue-google-maps/dist/x.js". Names without an alias come back unchanged.
func (a Aliases) Resolve(name string) string {
	// bounded by len(a) so a cycle cannot loop forever
	for range len(a) {
		next, ok := a.lookup(name)
		if !ok || next == name {
			break
		}
		name = next
	}
	return name
}

func (a Aliases) lookup(name string) (string, bool) {
	if target, ok := a[name]; ok {
		return target, true
	}
	for alias, target := range a {
		if rest, ok := strings.CutPrefix(name, alias+"/"); ok {
			return target + "/" + rest, true
		}
	}
	return "", false
}

// ImportMap is the browser import map document
type ImportMap struct {
	Imports map[string]string `json:"imports"`
}

// ImportMap points every alias and its canonical module at the same URL
// under baseURL, along with the eagerly loaded deps.
func (c *Config) ImportMap(baseURL string) ImportMap {
	base := strings.TrimSuffix(baseURL, "/") + "/"
	imports := make(map[string]string)

	for alias := range c.Resolve.Alias {
		canonical := c.Resolve.Alias.Resolve(alias)
		imports[alias] = base + canonical
		imports[canonical] = base + canonical
	}
	for _, dep := range c.OptimizeDeps.Include {
		canonical := c.Resolve.Alias.Resolve(dep)
		imports[dep] = base + canonical
	}
	return ImportMap{Imports: imports}
}

// ModulePreloads lists the eagerly loaded deps as URLs under baseURL
func (c *Config) ModulePreloads(baseURL string) []string {
	base := strings.TrimSuffix(baseURL, "/") + "/"
	var out []string
	for _, dep := range c.OptimizeDeps.Include {
		u := base + c.Resolve.Alias.Resolve(dep)
		if !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	slices.Sort(out)
	return out
}
