package compute

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Master URLs.
const (
	MasterLocal    = "local"
	MasterLocalAll = "local[*]"
)

// Config describes a compute context.
type Config struct {
	AppName string `mapstructure:"app_name" validate:"required"`
	// Master selects the execution engine: "local" (one worker),
	// "local[N]" (N workers) or "local[*]" (one worker per CPU).
	Master     string `mapstructure:"master" validate:"required"`
	BufferSize int    `mapstructure:"buffer_size" validate:"gte=0"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ApplyDefaults fills the master when it is empty.
func (c *Config) ApplyDefaults() {
	if c.Master == "" {
		c.Master = MasterLocalAll
	}
}

// Validate checks the struct tags and the master URL.
func (c Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return err
	}
	_, err := ParseMaster(c.Master)
	return err
}

// ParseMaster returns the number of workers a master URL asks for.
func ParseMaster(master string) (int, error) {
	switch master {
	case MasterLocal:
		return 1, nil
	case MasterLocalAll:
		return runtime.NumCPU(), nil
	}

	inner, ok := strings.CutPrefix(master, "local[")
	if ok {
		inner, ok = strings.CutSuffix(inner, "]")
	}
	if !ok {
		return 0, fmt.Errorf("unsupported master %q", master)
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid worker count in master %q", master)
	}
	return n, nil
}
