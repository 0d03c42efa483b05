//go:build !tinygo

package nrf24

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Environment variables that override values read by LoadConfig.
const (
	EnvSPIPath = "NRF24_SPI_PATH"
	EnvCEPin   = "NRF24_CE_PIN"
	EnvIRQPin  = "NRF24_IRQ_PIN"
	EnvCSPin   = "NRF24_CS_PIN"
	EnvChannel = "NRF24_CHANNEL"
)

// LoadConfig reads a YAML Config from path, applies environment overrides and
// the defaults. An empty path yields the defaults plus overrides.
func LoadConfig(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: failed to read config: %w", ErrPkg, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("%w: failed to parse config %s: %w", ErrPkg, path, err)
		}
	}
	if err := applyEnv(&c); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv(EnvSPIPath); v != "" {
		c.SpiBusPath = v
	}
	for _, o := range []struct {
		name string
		dst  *int
	}{
		{EnvCEPin, &c.CEPin},
		{EnvIRQPin, &c.IRQPin},
		{EnvCSPin, &c.CSPin},
	} {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid %s=%q", ErrPkg, o.name, v)
		}
		*o.dst = n
	}
	if v := os.Getenv(EnvChannel); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: invalid %s=%q", ErrPkg, EnvChannel, v)
		}
		c.Channel = byte(n)
	}
	return nil
}

// UnmarshalYAML accepts the names produced by String ("2mbps", "1mbps", "250kbps").
func (d *DataRate) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	for _, v := range []DataRate{DataRate2mbps, DataRate1mbps, DataRate250kbps} {
		if v.String() == s {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown data rate %q", ErrPkg, s)
}

// UnmarshalYAML accepts the names produced by String ("0dBm" ... "-18dBm").
func (p *PALevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	for _, v := range []PALevel{PALevelMax, PALevelHigh, PALevelLow, PALevelMin} {
		if v.String() == s {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown PA level %q", ErrPkg, s)
}
