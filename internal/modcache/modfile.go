// Package modcache is the build-time chunk cache: a local, file-backed
// store of already-compiled code objects keyed by a hash of their
// source text, plus the `kuroko.mod` config file that names the cache
// location and any remote cache plugin to consult on a local miss. It
// is a cache, not an import-resolution system — no fetching of
// third-party modules happens here.
package modcache

import (
	"fmt"
	"io/ioutil"
	"strings"
)

// Config is the parsed form of a `kuroko.mod` file: the name given by
// its `module` directive plus a line-oriented set of
// key/value settings (e.g. `remote_cache dynamodb`).
type Config struct {
	Module   string
	Settings map[string]string
}

func NewConfig() *Config {
	return &Config{Settings: make(map[string]string)}
}

// ParseModFile reads a `kuroko.mod` file. The format mirrors the
// teacher's own `noxy.mod`: one directive per line, `#`/`//` comments,
// blank lines ignored.
func ParseModFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "module":
			if len(parts) >= 2 {
				cfg.Module = parts[1]
			}
		default:
			if len(parts) >= 2 {
				cfg.Settings[parts[0]] = strings.Join(parts[1:], " ")
			}
		}
	}

	return cfg, nil
}

func (c *Config) Save(path string) error {
	var sb strings.Builder
	if c.Module != "" {
		sb.WriteString(fmt.Sprintf("module %s\n\n", c.Module))
	}
	for key, val := range c.Settings {
		sb.WriteString(fmt.Sprintf("%s %s\n", key, val))
	}
	return ioutil.WriteFile(path, []byte(sb.String()), 0644)
}

// CachePath returns the `cache_dir` setting, defaulting to the
// teacher-style dotfile convention used for local state directories.
func (c *Config) CachePath() string {
	if p, ok := c.Settings["cache_dir"]; ok {
		return p
	}
	return ".kuroko-cache"
}

// RemotePlugin returns the executable name configured for a remote
// chunk-cache plugin (e.g. "kuroko-cache-dynamodb"), or "" if none is
// configured.
func (c *Config) RemotePlugin() string {
	return c.Settings["remote_cache"]
}
