package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

const SupportedVersion = "1"

// Tag duplicate policies for the editor.
const (
	TagPolicyAllow  = "allow"
	TagPolicyDedupe = "dedupe"
)

// Object storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Config represents the complete configuration structure
type Config struct {
	Version  string         `yaml:"version" default:"1"`
	Site     SiteConfig     `yaml:"site"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Content  ContentConfig  `yaml:"content"`
	Editor   EditorConfig   `yaml:"editor"`
	Storage  StorageConfig  `yaml:"storage"`
	Features FeaturesConfig `yaml:"features"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
}

type SiteConfig struct {
	Name        string `yaml:"name" default:"Digital Atelier"`
	Description string `yaml:"description" default:"A personal blog"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port string `yaml:"port" default:"12600"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" default:"./database.db"`

	// Seconds between checks for posts changed outside this process.
	ReloadInterval int `yaml:"reload_interval" default:"10"`
}

type ContentConfig struct {
	// Renderer is either "mmark" or "classic".
	Renderer     string `yaml:"renderer" default:"mmark"`
	PostsPerPage int    `yaml:"posts_per_page" default:"10"`
	MaxPageSize  int    `yaml:"max_page_size" default:"100"`
}

type EditorConfig struct {
	// Seconds of inactivity before a dirty draft is saved.
	AutosaveInterval int    `yaml:"autosave_interval" default:"30"`
	MaxUploadMiB     int    `yaml:"max_upload_mib" default:"50"`
	TagPolicy        string `yaml:"tag_policy" default:"allow"`
	FlushOnClose     bool   `yaml:"flush_on_close" default:"true"`
	SnapshotPath     string `yaml:"snapshot_path" default:"./drafts.db"`
	LivePreview      bool   `yaml:"live_preview" default:"true"`
	SyntaxTheme      string `yaml:"syntax_theme" default:"gruvbox"`
}

func (e EditorConfig) AutosaveDelay() time.Duration {
	return time.Duration(e.AutosaveInterval) * time.Second
}

func (e EditorConfig) MaxUploadBytes() int64 {
	return int64(e.MaxUploadMiB) * 1024 * 1024
}

type StorageConfig struct {
	Type     string `yaml:"type" default:"fs"`
	LocalDir string `yaml:"local_dir" default:"./uploads"`
	Bucket   string `yaml:"bucket" default:"media"`
	Endpoint string `yaml:"endpoint" default:""`
	Region   string `yaml:"region" default:"auto"`

	// Prefix for public object URLs, e.g. a CDN domain.
	// Defaults to the local media route for the fs backend.
	PublicBaseURL string `yaml:"public_base_url" default:""`
}

type FeaturesConfig struct {
	Authentication AuthConfig `yaml:"authentication"`
}

type AuthConfig struct {
	Enabled     bool   `yaml:"enabled" default:"true"`
	Type        string `yaml:"type" default:"ed25519"`
	HeaderName  string `yaml:"header_name" default:"Authorization"`
	AdminUserID string `yaml:"admin_user_id" default:"admin"`
}

var AppConfig *Config

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	// Try to read and parse the config file
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		AppConfig = config
		return nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

// Validate rejects configurations the application cannot run with.
func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		return fmt.Errorf("unsupported configuration version %q (want %q)", c.Version, SupportedVersion)
	}

	switch c.Editor.TagPolicy {
	case TagPolicyAllow, TagPolicyDedupe:
	default:
		return fmt.Errorf("invalid editor.tag_policy %q: must be %q or %q", c.Editor.TagPolicy, TagPolicyAllow, TagPolicyDedupe)
	}

	if c.Editor.AutosaveInterval <= 0 {
		return fmt.Errorf("editor.autosave_interval must be positive, got %d", c.Editor.AutosaveInterval)
	}
	if c.Editor.MaxUploadMiB <= 0 {
		return fmt.Errorf("editor.max_upload_mib must be positive, got %d", c.Editor.MaxUploadMiB)
	}

	switch c.Storage.Type {
	case StorageFS, StorageS3:
	default:
		return fmt.Errorf("invalid storage.type %q", c.Storage.Type)
	}

	switch c.Content.Renderer {
	case RendererMmark, RendererClassic:
	default:
		return fmt.Errorf("invalid content.renderer %q: must be %q or %q", c.Content.Renderer, RendererMmark, RendererClassic)
	}

	if c.Content.PostsPerPage <= 0 || c.Content.MaxPageSize < c.Content.PostsPerPage {
		return fmt.Errorf("invalid content paging: posts_per_page=%d max_page_size=%d", c.Content.PostsPerPage, c.Content.MaxPageSize)
	}

	return nil
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
