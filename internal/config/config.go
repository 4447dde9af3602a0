package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all rig configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string // empty disables telemetry
	MQTTClientIDRig     string
	MQTTClientIDMonitor string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicTracker  string
	TopicActuator string
	TopicStimulus string

	// Devices
	UseMockDevices bool

	// GRBL stage controller
	GRBLSerialPort string
	GRBLBaudRate   int
	GRBLFeedRate   float64 // mm/min, 0 = rapid G0 moves

	// Camera and tracking
	CameraDevice      string
	CameraWidth       int
	CameraHeight      int
	CameraBlurSize    int
	CameraThreshold   int
	CameraMinBlobArea int
	PixelsPerMM       float64

	// Motion bounds, mm
	MinMove float64
	MaxMove float64

	// Angle smoothing window, samples
	FilterWindow int

	// Loops
	VisionMaxIterations int // 0 = run until cancelled
	MotorLoopInterval   int // milliseconds, 0 = free-running

	// Viewpoint mapping
	ViewpointHeight float64
	ViewpointScale  float64

	// Session
	LogDir          string
	ShutdownTimeout int // milliseconds

	// Services
	TelemetryInterval     int // milliseconds
	WebServerPort         int
	DisplayUpdateInterval int // milliseconds

	// Stimulus trigger output, empty = none
	TriggerGPIOPin string

	// Secondary config files
	DisplaysFile string
	StimuliFile  string
}

// Package-level unexported variables for the singleton:
//   - globalConfig: only reachable through Get, so nothing outside the
//     package can swap it without the lock.
//   - configOnce: InitGlobal only loads once.
//   - configMu: write lock for initialization, read lock for Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DefaultConfig returns a config with every key at its default.
func DefaultConfig() *Config {
	return &Config{
		MQTTClientIDRig:     "flyvr-rig",
		MQTTClientIDMonitor: "flyvr-monitor",
		MQTTClientIDWeb:     "flyvr-web",
		MQTTClientIDDisplay: "flyvr-display",

		TopicTracker:  "flyvr/tracker",
		TopicActuator: "flyvr/actuator",
		TopicStimulus: "flyvr/stimulus",

		GRBLBaudRate: 115200,

		CameraDevice:      "/dev/video0",
		CameraWidth:       200,
		CameraHeight:      200,
		CameraBlurSize:    10,
		CameraThreshold:   110,
		CameraMinBlobArea: 6,
		PixelsPerMM:       9.1051,

		MinMove:      1,
		MaxMove:      40,
		FilterWindow: 100,

		VisionMaxIterations: 12000,

		ViewpointScale: 1,

		LogDir:          "logs",
		ShutdownTimeout: 5000,

		TelemetryInterval:     100,
		WebServerPort:         8080,
		DisplayUpdateInterval: 250,

		DisplaysFile: "tv.ini",
		StimuliFile:  "stimuli.ini",
	}
}

// Load reads the configuration file on top of the defaults, then applies
// overrides given as KEY=VALUE (command-line flags), then validates.
func Load(configPath string, overrides ...string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Apply(overrides...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Apply sets KEY=VALUE pairs without validating.
func (c *Config) Apply(pairs ...string) error {
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid override %q", p)
		}
		if err := c.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("override: %w", err)
		}
	}
	return nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RIG":
		c.MQTTClientIDRig = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_TRACKER":
		c.TopicTracker = value
	case "TOPIC_ACTUATOR":
		c.TopicActuator = value
	case "TOPIC_STIMULUS":
		c.TopicStimulus = value

	// Devices
	case "USE_MOCK_DEVICES":
		c.UseMockDevices, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid USE_MOCK_DEVICES %q: %w", value, err)
		}

	// GRBL
	case "GRBL_SERIAL_PORT":
		c.GRBLSerialPort = value
	case "GRBL_BAUD_RATE":
		c.GRBLBaudRate, err = parseInt(key, value)
	case "GRBL_FEED_RATE":
		c.GRBLFeedRate, err = parseFloat(key, value)

	// Camera
	case "CAMERA_DEVICE":
		c.CameraDevice = value
	case "CAMERA_WIDTH":
		c.CameraWidth, err = parseInt(key, value)
	case "CAMERA_HEIGHT":
		c.CameraHeight, err = parseInt(key, value)
	case "CAMERA_BLUR_SIZE":
		c.CameraBlurSize, err = parseInt(key, value)
	case "CAMERA_THRESHOLD":
		c.CameraThreshold, err = parseInt(key, value)
		if err == nil && (c.CameraThreshold < 0 || c.CameraThreshold > 255) {
			return fmt.Errorf("CAMERA_THRESHOLD must be 0-255, got %d", c.CameraThreshold)
		}
	case "CAMERA_MIN_BLOB_AREA":
		c.CameraMinBlobArea, err = parseInt(key, value)
	case "PIXELS_PER_MM":
		c.PixelsPerMM, err = parseFloat(key, value)

	// Motion
	case "MIN_MOVE":
		c.MinMove, err = parseFloat(key, value)
	case "MAX_MOVE":
		c.MaxMove, err = parseFloat(key, value)
	case "FILTER_WINDOW":
		c.FilterWindow, err = parseInt(key, value)

	// Loops
	case "VISION_MAX_ITERATIONS":
		c.VisionMaxIterations, err = parseInt(key, value)
	case "MOTOR_LOOP_INTERVAL":
		c.MotorLoopInterval, err = parseInt(key, value)

	// Viewpoint
	case "VIEWPOINT_HEIGHT":
		c.ViewpointHeight, err = parseFloat(key, value)
	case "VIEWPOINT_SCALE":
		c.ViewpointScale, err = parseFloat(key, value)

	// Session
	case "LOG_DIR":
		c.LogDir = value
	case "SHUTDOWN_TIMEOUT":
		c.ShutdownTimeout, err = parseInt(key, value)

	// Services
	case "TELEMETRY_INTERVAL":
		c.TelemetryInterval, err = parseInt(key, value)
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	case "TRIGGER_GPIO_PIN":
		c.TriggerGPIOPin = value

	case "DISPLAYS_FILE":
		c.DisplaysFile = value
	case "STIMULI_FILE":
		c.StimuliFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if c.MinMove < 0 {
		return fmt.Errorf("MIN_MOVE must be >= 0, got %g", c.MinMove)
	}
	if c.MinMove > c.MaxMove {
		return fmt.Errorf("MIN_MOVE (%g) must not exceed MAX_MOVE (%g)", c.MinMove, c.MaxMove)
	}
	if c.FilterWindow <= 0 {
		return fmt.Errorf("FILTER_WINDOW must be > 0, got %d", c.FilterWindow)
	}
	if c.PixelsPerMM <= 0 {
		return fmt.Errorf("PIXELS_PER_MM must be > 0, got %g", c.PixelsPerMM)
	}
	if !c.UseMockDevices && c.GRBLSerialPort == "" {
		return fmt.Errorf("GRBL_SERIAL_PORT is required unless USE_MOCK_DEVICES=true")
	}
	if c.GRBLBaudRate <= 0 {
		return fmt.Errorf("GRBL_BAUD_RATE must be > 0, got %d", c.GRBLBaudRate)
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("CAMERA_WIDTH and CAMERA_HEIGHT must be > 0")
	}
	if c.CameraBlurSize < 0 || 2*c.CameraBlurSize >= c.CameraWidth || 2*c.CameraBlurSize >= c.CameraHeight {
		return fmt.Errorf("CAMERA_BLUR_SIZE %d does not fit a %dx%d frame", c.CameraBlurSize, c.CameraWidth, c.CameraHeight)
	}
	if c.VisionMaxIterations < 0 {
		return fmt.Errorf("VISION_MAX_ITERATIONS must be >= 0")
	}
	if c.MotorLoopInterval < 0 {
		return fmt.Errorf("MOTOR_LOOP_INTERVAL must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.TelemetryInterval <= 0 {
		return fmt.Errorf("TELEMETRY_INTERVAL must be > 0")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be > 0")
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) ShutdownTimeoutDuration() time.Duration   { return ms(c.ShutdownTimeout) }
func (c *Config) MotorLoopIntervalDuration() time.Duration { return ms(c.MotorLoopInterval) }
func (c *Config) TelemetryIntervalDuration() time.Duration { return ms(c.TelemetryInterval) }
func (c *Config) DisplayUpdateDuration() time.Duration     { return ms(c.DisplayUpdateInterval) }

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads; later calls return nil.
func InitGlobal(configPath string, overrides ...string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath, overrides...)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
