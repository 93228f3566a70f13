package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/config.toml"

type Config struct {
	App       AppConfig       `toml:"app"`
	Log       LogConfig       `toml:"log"`
	Hub       HubConfig       `toml:"hub"`
	Bookmarks BookmarksConfig `toml:"bookmarks"`
	Board     BoardConfig     `toml:"board"`
	MySQL     MySQLConfig     `toml:"mysql"`
	Redis     RedisConfig     `toml:"redis"`
	RabbitMQ  RabbitMQConfig  `toml:"rabbitmq"`
	Notes     NotesConfig     `toml:"notes"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Voila     VoilaConfig     `toml:"voila"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	GinMode string `toml:"gin_mode"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HubConfig carries what the launcher tells a spawned process about itself.
type HubConfig struct {
	User          string `toml:"user"`
	ServicePrefix string `toml:"service_prefix"`
}

type BookmarksConfig struct {
	Title   string     `toml:"title"`
	Heading string     `toml:"heading"`
	Links   []Bookmark `toml:"links"`
}

type Bookmark struct {
	URL   string `toml:"url"`
	Image string `toml:"image"`
	Width int    `toml:"width"`
	Title string `toml:"title"`
}

type BoardConfig struct {
	Title             string `toml:"title"`
	Driver            string `toml:"driver"`
	SQLitePath        string `toml:"sqlite_path"`
	PersistMode       string `toml:"persist_mode"`
	ListLimit         int    `toml:"list_limit"`
	PostRatePerMinute int    `toml:"post_rate_per_minute"`
}

type MySQLConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DB       string `toml:"db"`
	Params   string `toml:"params"`
}

// RedisConfig enables the comment list cache when Addr is set.
type RedisConfig struct {
	Addr               string `toml:"addr"`
	Password           string `toml:"password"`
	DB                 int    `toml:"db"`
	CommentsTTLSeconds int    `toml:"comments_ttl_seconds"`
}

type RabbitMQConfig struct {
	URL                 string `toml:"url"`
	CommentPersistQueue string `toml:"comment_persist_queue"`
}

type NotesConfig struct {
	Root          string `toml:"root"`
	StudentsCSV   string `toml:"students_csv"`
	DefaultCourse string `toml:"default_course"`
}

type ProxyConfig struct {
	ServiceName    string `toml:"service_name"`
	TargetHost     string `toml:"target_host"`
	TargetPort     int    `toml:"target_port"`
	Debug          bool   `toml:"debug"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Prefix         string `toml:"prefix"`
	IconPath       string `toml:"icon_path"`
	Title          string `toml:"title"`
}

type VoilaConfig struct {
	Command        string `toml:"command"`
	Notebook       string `toml:"notebook"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	IconPath       string `toml:"icon_path"`
	Title          string `toml:"title"`
}

// Load builds the configuration from defaults, an optional TOML file, an
// optional .env file and the process environment, in that order.
// An explicitly named file that does not exist is an error; the default
// path is optional.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = getEnv("CONFIG_FILE", "")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("stat config file failed: %w", err)
	}

	dotenv := getEnv("DOTENV_FILE", ".env")
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("load dotenv file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if cfg.Notes.StudentsCSV == "" {
		cfg.Notes.StudentsCSV = filepath.Join(cfg.Notes.Root, "students.csv")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Proxy.TargetPort <= 0 || c.Proxy.TargetPort > 65535 {
		return fmt.Errorf("proxy target port %d is not in range [1,65535]", c.Proxy.TargetPort)
	}
	switch c.Board.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown board driver %q", c.Board.Driver)
	}
	switch c.Board.PersistMode {
	case "sync":
	case "async":
		if c.RabbitMQ.URL == "" {
			return errors.New("board persist_mode async requires rabbitmq url")
		}
	default:
		return fmt.Errorf("unknown board persist mode %q", c.Board.PersistMode)
	}
	return nil
}

func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.DB,
		c.MySQL.Params,
	)
}

// ProxyTarget is the upstream host:port.
func (c *Config) ProxyTarget() string {
	return fmt.Sprintf("%s:%d", c.Proxy.TargetHost, c.Proxy.TargetPort)
}

func (c *Config) ProxyBaseURL() string {
	return "http://" + c.ProxyTarget()
}

// ProxyPrefix is the path under which the launcher exposes the proxy. It
// always starts and ends with a slash.
func (c *Config) ProxyPrefix() string {
	prefix := c.Proxy.Prefix
	if prefix == "" && c.Hub.ServicePrefix != "" {
		prefix = strings.TrimSuffix(c.Hub.ServicePrefix, "/") + "/" + c.Proxy.ServiceName + "/"
	}
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "jupyter-proxy-apps",
			Env:     "dev",
			GinMode: "release",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bookmarks: BookmarksConfig{
			Title:   "YunLab",
			Heading: "書籤",
			Links: []Bookmark{
				{URL: "https://memos.yunlab.synology.me/", Image: "https://i.imgur.com/snyB4gl.png", Width: 100, Title: "Blog"},
				{URL: "https://eclass.yuntech.edu.tw/", Image: "https://i.imgur.com/AUJrBbe.png", Width: 100, Title: "Eclass"},
				{URL: "https://finance.yunlab.synology.me/", Image: "https://i.imgur.com/n15UqXn.png", Width: 140, Title: "期貨與選擇權"},
				{URL: "https://data.yunlab.synology.me/", Image: "https://upload.wikimedia.org/wikipedia/zh/thumb/6/62/MySQL.svg/1200px-MySQL.svg.png", Width: 180, Title: "MySQL"},
			},
		},
		Board: BoardConfig{
			Title:       "留言板",
			Driver:      "sqlite",
			SQLitePath:  "/home/jupyter-data/board/comments.db",
			PersistMode: "sync",
			ListLimit:   100,
		},
		MySQL: MySQLConfig{
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			DB:     "jupyter_board",
			Params: "parseTime=true&loc=Local&charset=utf8mb4",
		},
		Redis: RedisConfig{
			CommentsTTLSeconds: 30,
		},
		RabbitMQ: RabbitMQConfig{
			CommentPersistQueue: "board.comment.persist",
		},
		Notes: NotesConfig{
			Root:          "/home/jupyter-data/notes",
			DefaultCourse: "Reference",
		},
		Proxy: ProxyConfig{
			ServiceName:    "typewords",
			TargetHost:     "localhost",
			TargetPort:     3000,
			TimeoutSeconds: 30,
			IconPath:       "/opt/tljh/hub/share/jupyterhub/derivatives.svg",
			Title:          "背單字",
		},
		Voila: VoilaConfig{
			Command:        "voila",
			Notebook:       "/opt/tljh/hub/share/jupyterhub/derivatives2.ipynb",
			TimeoutSeconds: 60,
			IconPath:       "/opt/tljh/hub/share/jupyterhub/derivatives.svg",
			Title:          "Derivatives Tools",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Hub.User = getEnv("JUPYTERHUB_USER", cfg.Hub.User)
	cfg.Hub.ServicePrefix = getEnv("JUPYTERHUB_SERVICE_PREFIX", cfg.Hub.ServicePrefix)

	cfg.Board.Driver = getEnv("BOARD_DRIVER", cfg.Board.Driver)
	cfg.Board.SQLitePath = getEnv("BOARD_DB_PATH", cfg.Board.SQLitePath)
	cfg.Board.PersistMode = getEnv("BOARD_PERSIST_MODE", cfg.Board.PersistMode)

	cfg.MySQL.Host = getEnv("MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Port = getEnvAsInt("MYSQL_PORT", cfg.MySQL.Port)
	cfg.MySQL.User = getEnv("MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.DB = getEnv("MYSQL_DB", cfg.MySQL.DB)
	cfg.MySQL.Params = getEnv("MYSQL_PARAMS", cfg.MySQL.Params)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.CommentPersistQueue = getEnv("RABBITMQ_COMMENT_PERSIST_QUEUE", cfg.RabbitMQ.CommentPersistQueue)

	cfg.Notes.Root = getEnv("NOTES_ROOT", cfg.Notes.Root)
	cfg.Notes.StudentsCSV = getEnv("NOTES_STUDENTS_CSV", cfg.Notes.StudentsCSV)

	cfg.Proxy.TargetHost = getEnv("TYPEWORDS_TARGET_HOST", cfg.Proxy.TargetHost)
	cfg.Proxy.TargetPort = getEnvAsInt("TYPEWORDS_TARGET_PORT", cfg.Proxy.TargetPort)
	cfg.Proxy.Debug = getEnvAsBool("TYPEWORDS_DEBUG", cfg.Proxy.Debug)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
