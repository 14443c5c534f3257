package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	quietroute "github.com/theoremus-urban-solutions/quiet-route"
	"github.com/theoremus-urban-solutions/quiet-route/config"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration")
	layoutPath := flag.String("layout", "", "network layout JSON (overrides config and env)")
	timeoutMS := flag.Int("timeoutMS", -1, "bounded run in milliseconds; 0 runs until interrupted")
	username := flag.String("username", "", "login for the feed and the query server")
	passcode := flag.String("passcode", "", "passcode for the feed and the query server")
	flag.Parse()

	// A local .env can hold the QUIETROUTE_* overrides during development.
	_ = godotenv.Load()
	quietroute.InitLogging()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Printf("quiet-route: %v", err)
		os.Exit(1)
	}
	if *layoutPath != "" {
		cfg.Network.LayoutFilePath = *layoutPath
	}
	if *timeoutMS >= 0 {
		cfg.RunTimeoutMS = *timeoutMS
	}
	cfg.Username = *username
	cfg.Passcode = *passcode

	monitor := quietroute.NewMonitor()
	if code := monitor.Configure(cfg); code != quietroute.Ok {
		log.Printf("quiet-route: configuration failed: %s", code)
		os.Exit(1)
	}

	monitor.RunFor(time.Duration(cfg.RunTimeoutMS) * time.Millisecond)

	// A query client hanging up is an acceptable way for a run to end; any
	// other latched error is a failure.
	if code := monitor.LastError(); !code.Benign() {
		log.Printf("quiet-route: last error: %s", code)
		os.Exit(2)
	}
}
