// Package config loads and validates the YAML configuration described in
// spec.md §6: a timezone, a list of source subvolumes each uploading to one
// remote under a named retention schedule, and the remotes themselves.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"snapvault/internal/model"
	"snapvault/internal/retention"
)

// RawConfig is the on-disk shape, unmarshaled directly from YAML.
type RawConfig struct {
	Timezone                  string      `yaml:"timezone"`
	BandwidthLimitBytesPerSec int         `yaml:"bandwidth_limit_bytes_per_sec"`
	UploadStaging             bool        `yaml:"upload_staging"`
	UploadStagingDir          string      `yaml:"upload_staging_dir"`
	Sources                   []RawSource `yaml:"sources"`
	Remotes                   []RawRemote `yaml:"remotes"`
}

type RawSource struct {
	Path            string            `yaml:"path"`
	Snapshots       string            `yaml:"snapshots"`
	UploadToRemotes []RawUploadTarget `yaml:"upload_to_remotes"`
}

type RawUploadTarget struct {
	ID          string     `yaml:"id"`
	Preserve    string     `yaml:"preserve"`
	PipeThrough [][]string `yaml:"pipe_through"`
}

type RawRemote struct {
	ID string `yaml:"id"`
	S3 RawS3  `yaml:"s3"`
}

type RawS3 struct {
	Bucket   string         `yaml:"bucket"`
	Endpoint *RawS3Endpoint `yaml:"endpoint"`
}

type RawS3Endpoint struct {
	Region      string `yaml:"region_name"`
	Profile     string `yaml:"profile_name"`
	Verify      string `yaml:"verify"`
	EndpointURL string `yaml:"endpoint_url"`
}

// Config is the resolved, validated configuration the CLI runs against.
type Config struct {
	Location                  *time.Location
	BandwidthLimitBytesPerSec int
	UploadStagingDir          string
	StageUploads              bool
	Sources                   []Source
}

// Source is one subvolume being protected, its snapshot directory, its
// single upload target, and the retention schedule for that target.
// spec.md §6 restricts the data model to one remote, one snapshot
// location, and one preserve string per source; Load enforces that.
type Source struct {
	Path        string
	SnapshotDir string
	Remote      Remote
	Preserve    retention.RetentionParams
	PipeThrough [][]string
}

type Remote struct {
	ID       string
	Bucket   string
	Endpoint S3Endpoint
}

type S3Endpoint struct {
	Region      string
	Profile     string
	VerifyTLS   bool
	CAPath      string
	EndpointURL string
}

// Load reads, schema-validates, and resolves the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(b, &generic); err != nil {
		return nil, &model.ConfigurationError{Msg: fmt.Sprintf("invalid yaml: %v", err)}
	}
	if err := validateSchema(generic); err != nil {
		return nil, &model.ConfigurationError{Msg: err.Error()}
	}

	var raw RawConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, &model.ConfigurationError{Msg: fmt.Sprintf("invalid yaml: %v", err)}
	}

	return resolve(raw)
}

func resolve(raw RawConfig) (*Config, error) {
	loc := time.UTC
	if raw.Timezone != "" {
		l, err := time.LoadLocation(raw.Timezone)
		if err != nil {
			return nil, &model.ConfigurationError{Msg: fmt.Sprintf("unknown timezone %q: %v", raw.Timezone, err)}
		}
		loc = l
	}

	remotesByID := make(map[string]RawRemote, len(raw.Remotes))
	for _, r := range raw.Remotes {
		remotesByID[r.ID] = r
	}

	var (
		sources        []Source
		distinctRemote = map[string]bool{}
		distinctDirs   = map[string]bool{}
		distinctPreser = map[string]bool{}
	)

	for _, rs := range raw.Sources {
		if len(rs.UploadToRemotes) != 1 {
			return nil, &model.ConfigurationError{Msg: fmt.Sprintf("source %s: exactly one upload target is supported, got %d", rs.Path, len(rs.UploadToRemotes))}
		}
		target := rs.UploadToRemotes[0]

		rr, ok := remotesByID[target.ID]
		if !ok {
			return nil, &model.ConfigurationError{Msg: fmt.Sprintf("source %s: unknown remote id %q", rs.Path, target.ID)}
		}

		params, err := retention.ParsePreserve(target.Preserve)
		if err != nil {
			return nil, &model.ConfigurationError{Msg: fmt.Sprintf("source %s: invalid preserve string %q: %v", rs.Path, target.Preserve, err)}
		}

		distinctRemote[target.ID] = true
		distinctDirs[rs.Snapshots] = true
		distinctPreser[target.Preserve] = true

		remote, err := resolveRemote(rr)
		if err != nil {
			return nil, err
		}

		sources = append(sources, Source{
			Path:        rs.Path,
			SnapshotDir: rs.Snapshots,
			Remote:      remote,
			Preserve:    params,
			PipeThrough: target.PipeThrough,
		})
	}

	if len(distinctRemote) > 1 {
		return nil, &model.ConfigurationError{Msg: "at most one remote is supported across all sources"}
	}
	if len(distinctDirs) > 1 {
		return nil, &model.ConfigurationError{Msg: "at most one snapshot directory is supported across all sources"}
	}
	if len(distinctPreser) > 1 {
		return nil, &model.ConfigurationError{Msg: "at most one distinct preserve string is supported across all uploads"}
	}

	return &Config{
		Location:                  loc,
		BandwidthLimitBytesPerSec: raw.BandwidthLimitBytesPerSec,
		StageUploads:              raw.UploadStaging,
		UploadStagingDir:          raw.UploadStagingDir,
		Sources:                   sources,
	}, nil
}

func resolveRemote(rr RawRemote) (Remote, error) {
	if rr.S3.Bucket == "" {
		return Remote{}, &model.ConfigurationError{Msg: fmt.Sprintf("remote %s: s3.bucket is required", rr.ID)}
	}
	remote := Remote{ID: rr.ID, Bucket: rr.S3.Bucket}
	if rr.S3.Endpoint != nil {
		ep := rr.S3.Endpoint
		remote.Endpoint = S3Endpoint{
			Region:      ep.Region,
			Profile:     ep.Profile,
			EndpointURL: ep.EndpointURL,
		}
		switch ep.Verify {
		case "", "true":
			remote.Endpoint.VerifyTLS = true
		case "false":
			remote.Endpoint.VerifyTLS = false
		default:
			remote.Endpoint.VerifyTLS = true
			remote.Endpoint.CAPath = ep.Verify
		}
	} else {
		remote.Endpoint.VerifyTLS = true
	}
	return remote, nil
}

// schema is a minimal structural check run before the semantic loader, so
// a malformed file is rejected with a precise field-level message rather
// than a generic unmarshal error.
const schema = `{
  "type": "object",
  "required": ["sources", "remotes"],
  "properties": {
    "timezone": {"type": "string"},
    "bandwidth_limit_bytes_per_sec": {"type": "integer"},
    "upload_staging": {"type": "boolean"},
    "upload_staging_dir": {"type": "string"},
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "snapshots", "upload_to_remotes"],
        "properties": {
          "path": {"type": "string"},
          "snapshots": {"type": "string"},
          "upload_to_remotes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "preserve"],
              "properties": {
                "id": {"type": "string"},
                "preserve": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "remotes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "s3"],
        "properties": {
          "id": {"type": "string"},
          "s3": {
            "type": "object",
            "required": ["bucket"],
            "properties": {"bucket": {"type": "string"}}
          }
        }
      }
    }
  }
}`

func validateSchema(generic map[string]interface{}) error {
	doc, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("marshal config for schema check: %w", err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msg := ""
		for i, e := range result.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += fmt.Sprintf("%s: %s", e.Field(), e.Description())
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
