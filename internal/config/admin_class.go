package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrUnknownAdminClass = errors.New("unknown_admin_class")

// AdminClass is a display-only label attached to roster records.
type AdminClass struct {
	Key   string `mapstructure:"key" json:"key"`
	Label string `mapstructure:"label" json:"label"`
}

type AdminClassConfig struct {
	Classes []AdminClass `mapstructure:"adminClasses"`
}

func DefaultAdminClassConfig() AdminClassConfig {
	labels := []string{"CEO", "CTO", "COO", "Manager", "Lead", "Administrator"}
	classes := make([]AdminClass, 0, len(labels))
	for _, label := range labels {
		classes = append(classes, AdminClass{Key: slug.Make(label), Label: label})
	}
	return AdminClassConfig{Classes: classes}
}

// Resolve maps a label or key to its canonical class.
func (c AdminClassConfig) Resolve(raw string) (AdminClass, error) {
	key := slug.Make(strings.TrimSpace(raw))
	if key == "" {
		return AdminClass{}, ErrUnknownAdminClass
	}
	for _, class := range c.Classes {
		if class.Key == key {
			return class, nil
		}
	}
	return AdminClass{}, ErrUnknownAdminClass
}

type AdminClassHolder struct {
	current atomic.Value // holds AdminClassConfig
}

// NewAdminClassHolder loads roster.yml from the usual config paths and keeps
// it hot-reloaded. Missing files fall back to the default classes.
func NewAdminClassHolder(log *zap.Logger) (*AdminClassHolder, error) {
	v := viper.New()
	v.SetConfigName("roster")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/agencydesk/config")
	v.AddConfigPath("/etc/agencydesk")
	v.AddConfigPath(".")

	return loadAdminClassHolder(v, log)
}

// NewAdminClassHolderFromFile is used when the roster file location is known.
func NewAdminClassHolderFromFile(path string, log *zap.Logger) (*AdminClassHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")

	return loadAdminClassHolder(v, log)
}

// NewStaticAdminClassHolder never reloads.
func NewStaticAdminClassHolder(cfg AdminClassConfig) *AdminClassHolder {
	holder := &AdminClassHolder{}
	holder.current.Store(normalizeAdminClasses(cfg))
	return holder
}

func loadAdminClassHolder(v *viper.Viper, log *zap.Logger) (*AdminClassHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.admin_class")

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	cfg := DefaultAdminClassConfig()
	if found {
		var loaded AdminClassConfig
		if err := v.Unmarshal(&loaded); err != nil {
			return nil, err
		}
		if err := validateAdminClassConfig(loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}

	holder := &AdminClassHolder{}
	holder.current.Store(normalizeAdminClasses(cfg))

	if !found {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AdminClassConfig
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateAdminClassConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(normalizeAdminClasses(updated))
		log.Info("reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *AdminClassHolder) Get() AdminClassConfig {
	return h.current.Load().(AdminClassConfig)
}

func (h *AdminClassHolder) Resolve(raw string) (AdminClass, error) {
	return h.Get().Resolve(raw)
}

func normalizeAdminClasses(cfg AdminClassConfig) AdminClassConfig {
	out := AdminClassConfig{Classes: make([]AdminClass, 0, len(cfg.Classes))}
	for _, class := range cfg.Classes {
		label := strings.TrimSpace(class.Label)
		key := slug.Make(class.Key)
		if key == "" {
			key = slug.Make(label)
		}
		out.Classes = append(out.Classes, AdminClass{Key: key, Label: label})
	}
	return out
}

func validateAdminClassConfig(cfg AdminClassConfig) error {
	if len(cfg.Classes) == 0 {
		return errors.New("adminClasses cannot be empty")
	}
	for _, class := range cfg.Classes {
		if strings.TrimSpace(class.Label) == "" {
			return errors.New("adminClasses label cannot be empty")
		}
	}
	return nil
}
