package config

// ConfigBackend abstracts where persisted config values live. The default
// is a flat JSON object keyed by dotted config names.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
