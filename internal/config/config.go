// Package config loads the project file that drives a reconciliation run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/naoina/toml"

	"github.com/signalsfoundry/gnss-arcs/model"
)

// ErrInvalid marks a project file that failed to parse or validate.
var ErrInvalid = errors.New("invalid configuration")

const (
	// ReferenceMarker uses the station marker as the statistics reference.
	ReferenceMarker = "marker"
	// ReferenceWeightedMean uses the inverse-variance weighted mean position.
	ReferenceWeightedMean = "weighted-mean"

	unsetLeap = -1
	unsetMask = -1
)

// Config is the decoded project file.
type Config struct {
	Station        Station  `toml:"station"`
	Time           Time     `toml:"time"`
	Arcs           Arcs     `toml:"arcs"`
	DOP            DOP      `toml:"dop"`
	Stats          Stats    `toml:"stats"`
	Paths          Paths    `toml:"paths"`
	Constellations []string `toml:"constellations" validate:"dive,len=1,oneof=E G R C S J I"`
	Logging        Logging  `toml:"logging"`
	Tracing        Tracing  `toml:"tracing"`
	Metrics        Metrics  `toml:"metrics"`
	Influx         Influx   `toml:"influx"`
}

// Station is the ground station marker.
type Station struct {
	Name   string  `toml:"name"`
	Lat    float64 `toml:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `toml:"lon" validate:"gte=-180,lte=360"`
	Height float64 `toml:"height"`
	Mask   float64 `toml:"mask" validate:"gte=0,lt=90"`
}

// Time holds the GPS-UTC offset. It has no default.
type Time struct {
	LeapSeconds int `toml:"leap_seconds" validate:"gte=0,lte=100"`
}

// Arcs configures arc extraction. An ElevationCutoff of 0 disables the
// pre-segmentation filter.
type Arcs struct {
	GapMultiplier   float64 `toml:"gap_multiplier" validate:"gt=0"`
	ElevationCutoff float64 `toml:"elevation_cutoff" validate:"gte=0,lt=90"`
}

// DOP configures the dilution-of-precision series. Mask defaults to the
// station mask.
type DOP struct {
	Stride  int     `toml:"stride" validate:"gte=1"`
	Mask    float64 `toml:"mask" validate:"gte=0,lt=90"`
	Workers int     `toml:"workers" validate:"gte=0"`
}

// Stats configures the position statistics.
type Stats struct {
	Reference string `toml:"reference" validate:"oneof=marker weighted-mean"`
}

// Paths lists the run inputs and the output directory.
type Paths struct {
	Observations string `toml:"observations" validate:"required"`
	PRNMap       string `toml:"prn_map"`
	TLEDir       string `toml:"tle_dir"`
	Positions    string `toml:"positions"`
	OutputDir    string `toml:"output_dir" validate:"required"`
}

// Logging selects the log level and handler format.
type Logging struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Tracing selects the span exporter.
type Tracing struct {
	Exporter string `toml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint string `toml:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure bool   `toml:"insecure"`
}

// Metrics selects where the run metrics go. Both are optional.
type Metrics struct {
	Textfile string `toml:"textfile"`
	Addr     string `toml:"addr" validate:"omitempty,hostname_port"`
}

// Influx addresses an optional InfluxDB 2 sink; an empty URL disables it.
type Influx struct {
	URL    string `toml:"url" validate:"omitempty,url"`
	Token  string `toml:"token" validate:"required_with=URL"`
	Org    string `toml:"org" validate:"required_with=URL"`
	Bucket string `toml:"bucket" validate:"required_with=URL"`
}

// Default returns a Config with every optional field at its default and
// the mandatory ones unset.
func Default() Config {
	return Config{
		Station: Station{Mask: 10},
		Time:    Time{LeapSeconds: unsetLeap},
		Arcs:    Arcs{GapMultiplier: 30},
		DOP:     DOP{Stride: 4800, Mask: unsetMask},
		Stats:   Stats{Reference: ReferenceMarker},
		Logging: Logging{Level: "info", Format: "text"},
		Tracing: Tracing{Exporter: "none"},
	}
}

// ApplyDefaults fills derived and zero fields. Mandatory fields are left
// for Validate to reject.
func (c Config) ApplyDefaults() Config {
	if c.DOP.Mask == unsetMask {
		c.DOP.Mask = c.Station.Mask
	}
	if c.Arcs.GapMultiplier == 0 {
		c.Arcs.GapMultiplier = 30
	}
	if c.DOP.Stride == 0 {
		c.DOP.Stride = 4800
	}
	if c.Stats.Reference == "" {
		c.Stats.Reference = ReferenceMarker
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	for i, s := range c.Constellations {
		c.Constellations[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and the cross-field rules.
func (c Config) Validate() error {
	if c.Time.LeapSeconds == unsetLeap {
		return fmt.Errorf("%w: time.leap_seconds must be set", ErrInvalid)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalid, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Systems returns the configured constellation subset, or nil meaning all.
func (c Config) Systems() ([]model.Constellation, error) {
	var out []model.Constellation
	for _, s := range c.Constellations {
		sys, err := model.ParseConstellation(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		out = append(out, sys)
	}
	return out, nil
}

// Cutoff returns the pre-segmentation elevation cutoff, nil when disabled.
func (c Config) Cutoff() *float64 {
	if c.Arcs.ElevationCutoff <= 0 {
		return nil
	}
	v := c.Arcs.ElevationCutoff
	return &v
}

// Decode reads a project file from r on top of Default. The result has
// defaults applied but is not validated.
func Decode(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return cfg.ApplyDefaults(), nil
}

// Load decodes the file at path. Validation is left to the caller so that
// command-line overrides can be applied first.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
