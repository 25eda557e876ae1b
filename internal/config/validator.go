package config

import (
	"errors"
	"net/url"

	"github.com/gookit/validate"
)

func init() {
	validate.AddValidator("proxyURL", func(val any) bool {
		s, ok := val.(string)
		if !ok {
			return false
		}
		if s == "" {
			return true
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return false
		}
		switch u.Scheme {
		case "socks5", "socks5h", "http", "https":
			return true
		}
		return false
	})
}

type Validator struct {
	conf *Config
}

func NewValidator(conf *Config) *Validator {
	return &Validator{conf: conf}
}

// Validate checks every section and returns the first failure.
func (cv *Validator) Validate() error {
	for _, section := range []any{
		&cv.conf.Storage,
		&cv.conf.Server,
		&cv.conf.Transport,
		&cv.conf.Sync,
		&cv.conf.Logger,
		&cv.conf.Cache,
		&cv.conf.Identity,
	} {
		v := validate.Struct(section)
		if !v.Validate() {
			return v.Errors.ErrOrNil()
		}
	}
	if cv.conf.Cache.Enabled && cv.conf.Cache.Size < 1 {
		return errors.New("cache.size must be at least 1 when the cache is enabled")
	}
	for _, p := range cv.conf.Sync.Peers {
		if p == "" {
			return errors.New("sync.peers contains an empty address")
		}
	}
	return nil
}
