package config

// ServerConfig configures the local STOMP query server.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gt=0"`
	Name     string `yaml:"name"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// FeedConfig configures the upstream passenger event feed.
type FeedConfig struct {
	URL         string `yaml:"url" validate:"required"`
	Port        int    `yaml:"port" validate:"gt=0"`
	Path        string `yaml:"path"`
	Destination string `yaml:"destination"`
	TimeoutMS   int    `yaml:"timeoutMS" validate:"gte=0"`
}

// NetworkConfig contains the static network inputs.
type NetworkConfig struct {
	LayoutFilePath          string `yaml:"layoutFilePath"`
	PassengerCountsFilePath string `yaml:"passengerCountsFilePath"`
	CACertFilePath          string `yaml:"caCertFilePath"`
	StationCapacity         int    `yaml:"stationCapacity" validate:"gte=0"`
}

// PlannerConfig holds the default quiet-route search parameters. A request
// may override any of them per query.
type PlannerConfig struct {
	MaxSlowdown      float64 `yaml:"maxSlowdown" validate:"gte=0"`
	MinQuietnessGain float64 `yaml:"minQuietnessGain" validate:"gte=0,lte=1"`
	KCandidates      int    `yaml:"kCandidates" validate:"gte=1"`
}

// GTFSRTConfig configures the optional GTFS-RT occupancy feed. An empty
// VehiclePositionsURL disables the poller.
type GTFSRTConfig struct {
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	ReadIntervalMS      int    `yaml:"readIntervalMS" validate:"gte=0"`
}

// AppConfig is the root configuration structure.
//
// Username and Passcode are supplied by the embedder at configure time;
// they are never read from config.yml or the environment.
type AppConfig struct {
	// RunTimeoutMS bounds the monitor's run; 0 means run until interrupted.
	RunTimeoutMS int `yaml:"runTimeoutMS" validate:"gte=0"`

	Server   ServerConfig  `yaml:"server" validate:"required"`
	Feed     FeedConfig    `yaml:"feed" validate:"required"`
	Network  NetworkConfig `yaml:"network"`
	Planner  PlannerConfig `yaml:"planner"`
	GTFSRT   GTFSRTConfig  `yaml:"gtfsrt"`
	Username string        `yaml:"-"`
	Passcode string        `yaml:"-"`
}
