package aiv_bot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// ConfigEnvVar names the environment variable holding the JSON config path.
const ConfigEnvVar = "AIV_CONFIG"

// Config is the robot's JSON configuration. Zero-valued fields mean "use the
// default", so a zero heading_epsilon, power_epsilon or attack_power cannot be
// configured; drive_newline is a pointer because false is a useful value.
type Config struct {
	DrivePort     string        `json:"drive_port,omitempty"`
	DriveBaudrate int           `json:"drive_baudrate,omitempty"`
	DriveTimeout  time.Duration `json:"drive_timeout,omitempty"`
	DriveNewline  *bool         `json:"drive_newline,omitempty"`

	PowerCap      int     `json:"power_cap,omitempty"`
	HorizontalFOV float64 `json:"horizontal_fov,omitempty"`
	OddIDFilter   bool    `json:"odd_id_filter,omitempty"`
	WeaponFlag    bool    `json:"weapon_flag,omitempty"`
	AttackPower   int     `json:"attack_power,omitempty"`

	MinDwell       time.Duration `json:"min_dwell,omitempty"`
	MaxDwell       time.Duration `json:"max_dwell,omitempty"`
	HeadingEpsilon float64       `json:"heading_epsilon,omitempty"`
	PowerEpsilon   int           `json:"power_epsilon,omitempty"`
	HeartbeatSlice time.Duration `json:"heartbeat_slice,omitempty"`
	HeartbeatPoll  time.Duration `json:"heartbeat_poll,omitempty"`
	TickInterval   time.Duration `json:"tick_interval,omitempty"`

	ArmPort          string        `json:"arm_port,omitempty"`
	ArmBaudrate      int           `json:"arm_baudrate,omitempty"`
	ArmProtocol      string        `json:"arm_protocol,omitempty"`
	ArmSpeed         int           `json:"arm_speed,omitempty"`
	ArmRetryInterval time.Duration `json:"arm_retry_interval,omitempty"`
	ArmStartupWait   time.Duration `json:"arm_startup_wait,omitempty"`
	Vertical         ServoAxis     `json:"vertical"`
	Lateral          ServoAxis     `json:"lateral"`

	FrontLeft      float64       `json:"front_left,omitempty"`
	BackLeft       float64       `json:"back_left,omitempty"`
	HomeLeft       float64       `json:"home_left,omitempty"`
	SweepAmplitude float64       `json:"sweep_amplitude,omitempty"`
	SweepPeriod    time.Duration `json:"sweep_period,omitempty"`

	SpinSearch  bool          `json:"spin_search,omitempty"`
	SpinHeading float64       `json:"spin_heading,omitempty"`
	SpinPeriod  time.Duration `json:"spin_period,omitempty"`

	FinalSendTimeout time.Duration `json:"final_send_timeout,omitempty"`

	CameraConfigFile string `json:"camera_config_file,omitempty"`
}

// DefaultConfig returns the configuration for the stock robot.
func DefaultConfig() *Config {
	newline := true
	return &Config{
		DrivePort:     "/dev/ttyUSB0",
		DriveBaudrate: 9600,
		DriveTimeout:  2 * time.Second,
		DriveNewline:  &newline,

		PowerCap:      MaxPowerCap,
		HorizontalFOV: 78,
		AttackPower:   11,

		MinDwell:       500 * time.Millisecond,
		MaxDwell:       time.Second,
		HeadingEpsilon: 1,
		PowerEpsilon:   1,
		HeartbeatSlice: 90 * time.Millisecond,
		HeartbeatPoll:  time.Millisecond,
		TickInterval:   time.Second / 30,

		ArmPort:          "/dev/ttyACM0",
		ArmBaudrate:      1000000,
		ArmProtocol:      ARM_PROTOCOL_AX12,
		ArmSpeed:         64,
		ArmRetryInterval: 100 * time.Millisecond,
		ArmStartupWait:   5 * time.Second,
		Vertical:         ServoAxis{ID: 1, Full: 1400, Zero: 2100},
		Lateral:          ServoAxis{ID: 4, Full: 1023, Zero: 3069},

		FrontLeft:      0.95,
		BackLeft:       0,
		HomeLeft:       1,
		SweepAmplitude: 0.15,
		SweepPeriod:    250 * time.Millisecond,

		SpinHeading: 20,
		SpinPeriod:  400 * time.Millisecond,

		FinalSendTimeout: 2 * time.Second,
	}
}

// Newline reports whether drive frames end in '\n'.
func (cfg *Config) Newline() bool {
	return cfg.DriveNewline == nil || *cfg.DriveNewline
}

// Validate replaces zero-valued fields with the defaults and checks the rest.
// path names the config source in error messages.
func (cfg *Config) Validate(path string) error {
	def := DefaultConfig()
	setString(&cfg.DrivePort, def.DrivePort)
	setInt(&cfg.DriveBaudrate, def.DriveBaudrate)
	setDuration(&cfg.DriveTimeout, def.DriveTimeout)
	if cfg.DriveNewline == nil {
		cfg.DriveNewline = def.DriveNewline
	}
	setInt(&cfg.PowerCap, def.PowerCap)
	setFloat(&cfg.HorizontalFOV, def.HorizontalFOV)
	setInt(&cfg.AttackPower, def.AttackPower)
	setDuration(&cfg.MinDwell, def.MinDwell)
	setDuration(&cfg.MaxDwell, def.MaxDwell)
	setFloat(&cfg.HeadingEpsilon, def.HeadingEpsilon)
	setInt(&cfg.PowerEpsilon, def.PowerEpsilon)
	setDuration(&cfg.HeartbeatSlice, def.HeartbeatSlice)
	setDuration(&cfg.HeartbeatPoll, def.HeartbeatPoll)
	setDuration(&cfg.TickInterval, def.TickInterval)
	setString(&cfg.ArmPort, def.ArmPort)
	setInt(&cfg.ArmBaudrate, def.ArmBaudrate)
	setString(&cfg.ArmProtocol, def.ArmProtocol)
	setInt(&cfg.ArmSpeed, def.ArmSpeed)
	setDuration(&cfg.ArmRetryInterval, def.ArmRetryInterval)
	setDuration(&cfg.ArmStartupWait, def.ArmStartupWait)
	if cfg.Vertical == (ServoAxis{}) {
		cfg.Vertical = def.Vertical
	}
	if cfg.Lateral == (ServoAxis{}) {
		cfg.Lateral = def.Lateral
	}
	setDuration(&cfg.SweepPeriod, def.SweepPeriod)
	setFloat(&cfg.SpinHeading, def.SpinHeading)
	setDuration(&cfg.SpinPeriod, def.SpinPeriod)
	setDuration(&cfg.FinalSendTimeout, def.FinalSendTimeout)

	if cfg.PowerCap != 20 && cfg.PowerCap != 25 {
		return fmt.Errorf("%s: power_cap must be 20 or 25, got %d", path, cfg.PowerCap)
	}
	if cfg.HorizontalFOV <= 0 || cfg.HorizontalFOV >= 180 {
		return fmt.Errorf("%s: horizontal_fov must be in (0, 180), got %v", path, cfg.HorizontalFOV)
	}
	if cfg.MinDwell > cfg.MaxDwell {
		return fmt.Errorf("%s: min_dwell (%v) must not exceed max_dwell (%v)", path, cfg.MinDwell, cfg.MaxDwell)
	}
	if cfg.HeartbeatSlice >= 100*time.Millisecond {
		return fmt.Errorf("%s: heartbeat_slice must be under 100ms, got %v", path, cfg.HeartbeatSlice)
	}
	if cfg.HeartbeatPoll >= cfg.TickInterval {
		return fmt.Errorf("%s: heartbeat_poll (%v) must be shorter than tick_interval (%v)",
			path, cfg.HeartbeatPoll, cfg.TickInterval)
	}
	if cfg.ArmProtocol != ARM_PROTOCOL_AX12 && cfg.ArmProtocol != ARM_PROTOCOL_FEETECH {
		return fmt.Errorf("%s: arm_protocol must be %q or %q, got %q",
			path, ARM_PROTOCOL_AX12, ARM_PROTOCOL_FEETECH, cfg.ArmProtocol)
	}
	for name, f := range map[string]float64{"front_left": cfg.FrontLeft, "back_left": cfg.BackLeft, "home_left": cfg.HomeLeft} {
		if f < 0 || f > 1 {
			return fmt.Errorf("%s: %s must be in [0, 1], got %v", path, name, f)
		}
	}
	if err := cfg.Vertical.Validate(path + ": vertical"); err != nil {
		return err
	}
	if err := cfg.Lateral.Validate(path + ": lateral"); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a JSON config file over the defaults. An empty path
// yields the defaults. When camera_config_file is set, its Front field of
// view replaces horizontal_fov.
func LoadConfig(path string, logger logging.Logger) (*Config, error) {
	cfg := DefaultConfig()
	source := "defaults"
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config JSON")
		}
		source = path
	}

	if cfg.CameraConfigFile != "" {
		fov, err := cameraFOV(cfg.CameraConfigFile)
		if err != nil {
			logger.Warnf("Failed to read camera config %s: %v, keeping horizontal_fov %v",
				cfg.CameraConfigFile, err, cfg.HorizontalFOV)
		} else {
			cfg.HorizontalFOV = fov
			logger.Debugf("horizontal_fov %v from %s", fov, cfg.CameraConfigFile)
		}
	}

	if err := cfg.Validate(source); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CameraConfigEntry is one camera line of the vision process config.txt:
// "<Front|Back> <video#> <outfile> <width> <height> <fov>".
type CameraConfigEntry struct {
	Channel    Channel
	Device     int
	OutputFile string
	Width      int
	Height     int
	FOV        float64
}

// ParseCameraConfig reads the camera lines of a config.txt. Lines for other
// devices are ignored.
func ParseCameraConfig(r io.Reader) ([]CameraConfigEntry, error) {
	var entries []CameraConfigEntry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var ch Channel
		switch fields[0] {
		case "Front":
			ch = Front
		case "Back":
			ch = Back
		default:
			continue
		}
		if len(fields) != 6 {
			return nil, errors.Errorf("line %d: expected 6 fields, got %d", lineNo, len(fields))
		}
		entry := CameraConfigEntry{Channel: ch, OutputFile: fields[2]}
		var err error
		if entry.Device, err = strconv.Atoi(fields[1]); err != nil {
			return nil, errors.Wrapf(err, "line %d: video device", lineNo)
		}
		if entry.Width, err = strconv.Atoi(fields[3]); err != nil {
			return nil, errors.Wrapf(err, "line %d: width", lineNo)
		}
		if entry.Height, err = strconv.Atoi(fields[4]); err != nil {
			return nil, errors.Wrapf(err, "line %d: height", lineNo)
		}
		if entry.FOV, err = strconv.ParseFloat(fields[5], 64); err != nil {
			return nil, errors.Wrapf(err, "line %d: fov", lineNo)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read camera config")
	}
	return entries, nil
}

func cameraFOV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	entries, err := ParseCameraConfig(f)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Channel == Front {
			return e.FOV, nil
		}
	}
	return 0, errors.New("no Front camera line")
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}
