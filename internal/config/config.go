package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es la configuración del proceso. Se carga una vez en main y es
// de solo lectura después del arranque.
type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	RateLimit struct {
		// Max requests de auth por IP por ventana. 0 desactiva el límite.
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		Secure     bool   `yaml:"secure"`
		SameSite   string `yaml:"samesite"`
		Domain     string `yaml:"domain"`
		TTL        string `yaml:"ttl"`
	} `yaml:"session"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	OAuth struct {
		// RedirectBaseURL es la base para construir redirect_uri:
		// {base}/auth/{platform}/callback
		RedirectBaseURL string `yaml:"redirect_base_url"`
		// DashboardURL es el destino tras un login exitoso.
		DashboardURL string `yaml:"dashboard_url"`

		GitHub    Credentials `yaml:"github"`
		GitLab    Credentials `yaml:"gitlab"`
		Bitbucket Credentials `yaml:"bitbucket"`
	} `yaml:"oauth"`

	Store struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		TableID string `yaml:"table_id"`
	} `yaml:"store"`
}

// Credentials son las credenciales OAuth de un proveedor.
// Un proveedor sin credenciales sigue registrado: el intercambio de código
// fallará recién en el token exchange (no se rechaza al arranque).
type Credentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Load lee config.yaml (opcional) y aplica overrides de entorno.
// Nunca falla por claves faltantes: eso se reporta via Warnings().
func Load(path string) (*Config, error) {
	var c Config
	c.defaults()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	return &c, nil
}

func (c *Config) defaults() {
	c.App.Env = "dev"
	c.App.LogLevel = "info"
	c.Server.Addr = ":8080"
	c.Session.CookieName = "mindus_session"
	c.Session.Secure = true
	c.Session.SameSite = "lax"
	c.Session.TTL = "168h"
	c.RateLimit.Max = 30
	c.RateLimit.Window = "1m"
	c.Cache.Kind = "memory"
	c.Cache.Redis.Addr = "localhost:6379"
	c.Cache.Redis.Prefix = "mindus:"
	c.OAuth.DashboardURL = "/dashboard"
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	if v, ok := getEnvInt("RATE_LIMIT_MAX"); ok {
		c.RateLimit.Max = v
	}
	if v, ok := getEnvStr("RATE_LIMIT_WINDOW"); ok {
		c.RateLimit.Window = v
	}

	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	if v, ok := getEnvStr("OAUTH_REDIRECT_BASE_URL"); ok {
		c.OAuth.RedirectBaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvStr("DASHBOARD_URL"); ok {
		c.OAuth.DashboardURL = v
	}
	if v, ok := getEnvStr("GITHUB_CLIENT_ID"); ok {
		c.OAuth.GitHub.ClientID = v
	}
	if v, ok := getEnvStr("GITHUB_CLIENT_SECRET"); ok {
		c.OAuth.GitHub.ClientSecret = v
	}
	if v, ok := getEnvStr("GITLAB_CLIENT_ID"); ok {
		c.OAuth.GitLab.ClientID = v
	}
	if v, ok := getEnvStr("GITLAB_CLIENT_SECRET"); ok {
		c.OAuth.GitLab.ClientSecret = v
	}
	if v, ok := getEnvStr("BITBUCKET_CLIENT_ID"); ok {
		c.OAuth.Bitbucket.ClientID = v
	}
	if v, ok := getEnvStr("BITBUCKET_CLIENT_SECRET"); ok {
		c.OAuth.Bitbucket.ClientSecret = v
	}

	if v, ok := getEnvStr("PROFILE_STORE_URL"); ok {
		c.Store.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvStr("PROFILE_STORE_TOKEN"); ok {
		c.Store.Token = v
	}
	if v, ok := getEnvStr("PROFILE_STORE_TABLE_ID"); ok {
		c.Store.TableID = v
	}
}

// RateLimitWindow parsea RateLimit.Window; 1 minuto si es inválido.
func (c *Config) RateLimitWindow() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.RateLimit.Window)); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// SessionTTL parsea Session.TTL; 7 días si el valor es inválido o vacío.
func (c *Config) SessionTTL() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.Session.TTL)); err == nil && d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

// Warnings lista claves requeridas ausentes. La ausencia no detiene el
// proceso: el feature que las necesita fallará más tarde con contexto.
func (c *Config) Warnings() []string {
	var w []string
	pair := func(name string, cr Credentials) {
		if cr.ClientID == "" || cr.ClientSecret == "" {
			w = append(w, name+" oauth credentials missing")
		}
	}
	pair("github", c.OAuth.GitHub)
	pair("gitlab", c.OAuth.GitLab)
	pair("bitbucket", c.OAuth.Bitbucket)

	if c.OAuth.RedirectBaseURL == "" {
		w = append(w, "OAUTH_REDIRECT_BASE_URL missing")
	}
	if c.Store.BaseURL == "" {
		w = append(w, "PROFILE_STORE_URL missing")
	}
	if c.Store.Token == "" {
		w = append(w, "PROFILE_STORE_TOKEN missing")
	}
	if c.Store.TableID == "" {
		w = append(w, "PROFILE_STORE_TABLE_ID missing")
	}
	return w
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
