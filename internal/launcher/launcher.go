package launcher

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"jupyter-proxy-apps/internal/config"
)

// Placeholders filled in by jupyter-server-proxy when it spawns a process.
const (
	PlaceholderPort       = "{port}"
	PlaceholderUnixSocket = "{unix_socket}"
	PlaceholderBaseURL    = "{base_url}"
)

type LauncherEntry struct {
	Enabled       *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	IconPath      string `json:"icon_path,omitempty" yaml:"icon_path,omitempty"`
	Title         string `json:"title,omitempty" yaml:"title,omitempty"`
	NewBrowserTab *bool  `json:"new_browser_tab,omitempty" yaml:"new_browser_tab,omitempty"`
}

// ServerProcess is one entry of the ServerProxy.servers mapping.
type ServerProcess struct {
	Command       []string          `json:"command" yaml:"command"`
	UnixSocket    bool              `json:"unix_socket,omitempty" yaml:"unix_socket,omitempty"`
	Timeout       int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	AbsoluteURL   bool              `json:"absolute_url,omitempty" yaml:"absolute_url,omitempty"`
	LauncherEntry *LauncherEntry    `json:"launcher_entry,omitempty" yaml:"launcher_entry,omitempty"`
	Environment   map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

type SetupFunc func(exe string, cfg *config.Config) ServerProcess

var setups = map[string]SetupFunc{
	"bookmarks": setupBookmarks,
	"board":     setupBoard,
	"notes":     setupNotes,
	"typewords": setupTypewords,
	"voila":     setupVoila,
}

func enabled() *bool {
	v := true
	return &v
}

func setupBookmarks(exe string, _ *config.Config) ServerProcess {
	return ServerProcess{
		Command:    []string{exe, "bookmarks", "-u", PlaceholderUnixSocket},
		UnixSocket: true,
	}
}

func setupBoard(exe string, cfg *config.Config) ServerProcess {
	return ServerProcess{
		Command:    []string{exe, "board", "-u", PlaceholderUnixSocket},
		UnixSocket: true,
		LauncherEntry: &LauncherEntry{
			Enabled: enabled(),
			Title:   cfg.Board.Title,
		},
	}
}

func setupNotes(exe string, _ *config.Config) ServerProcess {
	return ServerProcess{
		Command:    []string{exe, "notes", "-u", PlaceholderUnixSocket},
		UnixSocket: true,
		LauncherEntry: &LauncherEntry{
			Enabled: enabled(),
			Title:   "上課講義",
		},
	}
}

func setupTypewords(exe string, cfg *config.Config) ServerProcess {
	env := map[string]string{
		"TYPEWORDS_TARGET_HOST": cfg.Proxy.TargetHost,
		"TYPEWORDS_TARGET_PORT": strconv.Itoa(cfg.Proxy.TargetPort),
	}
	if cfg.Proxy.Debug {
		env["TYPEWORDS_DEBUG"] = "1"
	}
	return ServerProcess{
		Command:    []string{exe, "typewords", "--unix-socket", PlaceholderUnixSocket},
		UnixSocket: true,
		LauncherEntry: &LauncherEntry{
			Enabled:  enabled(),
			IconPath: cfg.Proxy.IconPath,
			Title:    cfg.Proxy.Title,
		},
		Environment: env,
	}
}

// setupVoila runs voila directly; this binary never serves it.
func setupVoila(_ string, cfg *config.Config) ServerProcess {
	return ServerProcess{
		Command: []string{
			cfg.Voila.Command,
			cfg.Voila.Notebook,
			"--no-browser",
			"--port=" + PlaceholderPort,
			"--Voila.ip=0.0.0.0",
			"--Voila.base_url=" + PlaceholderBaseURL + "voila/",
			"--Voila.server_url=/",
		},
		Timeout: cfg.Voila.TimeoutSeconds,
		LauncherEntry: &LauncherEntry{
			IconPath: cfg.Voila.IconPath,
			Title:    cfg.Voila.Title,
		},
	}
}

// Names lists every service that has a launcher entry, sorted.
func Names() []string {
	names := make([]string, 0, len(setups))
	for name := range setups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Setup(name, exe string, cfg *config.Config) (ServerProcess, error) {
	setup, ok := setups[name]
	if !ok {
		return ServerProcess{}, fmt.Errorf("unknown service %q", name)
	}
	return setup(exe, cfg), nil
}

// Servers builds the entries for names, or for every service when names is empty.
func Servers(names []string, exe string, cfg *config.Config) (map[string]ServerProcess, error) {
	if len(names) == 0 {
		names = Names()
	}
	servers := make(map[string]ServerProcess, len(names))
	for _, name := range names {
		proc, err := Setup(name, exe, cfg)
		if err != nil {
			return nil, err
		}
		servers[name] = proc
	}
	return servers, nil
}

type document struct {
	ServerProxy serverProxy `json:"ServerProxy" yaml:"ServerProxy"`
}

type serverProxy struct {
	Servers map[string]ServerProcess `json:"servers" yaml:"servers"`
}

// Render writes {"ServerProxy": {"servers": ...}} as json or yaml.
func Render(w io.Writer, servers map[string]ServerProcess, format string) error {
	doc := document{ServerProxy: serverProxy{Servers: servers}}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode launcher config failed: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode launcher config failed: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush launcher config failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
