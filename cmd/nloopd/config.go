package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname  = "data"
	defaultLogDirname   = "logs"
	defaultLogFilename  = "nloopd.log"
	defaultLogLevel     = "info"
	defaultNetwork      = "mainnet"
	defaultMaxLogFiles  = 3
	defaultMaxLogFileMB = 10

	defaultSwapServerHost = "localhost:11010"
	defaultLndHost        = "localhost:10009"

	defaultMaxSwapFeePPM = 10000 // 1% of swap amount
	defaultMaxMinerFee   = 50000
	defaultMaxCLTVDelta  = 1008
)

var defaultNloopDir = filepath.Join(os.Getenv("HOME"), ".nloopd")

// config holds nloopd's full runtime configuration, populated from the
// command line and (optionally) a config file by go-flags -- the same
// struct-tag-driven idiom the teacher uses for its own daemon config.
type config struct {
	Network string `long:"network" description:"network to run on" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"simnet"`

	NloopDir string `long:"nloopdir" description:"the base directory used to store nloopd's data"`
	LogDir   string `long:"logdir" description:"directory to log output"`

	DebugLevel string `long:"debuglevel" description:"logging level applied to all subsystems"`

	MaxLogFiles  int `long:"maxlogfiles" description:"maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileMB int `long:"maxlogfilesize" description:"maximum log file size in MB"`

	SwapServerHost string `long:"swapserver" description:"host:port of the counterparty swap service"`

	LndHost    string `long:"lnd.host" description:"host:port of the lnd gRPC interface"`
	LndMacaroon string `long:"lnd.macaroonpath" description:"path to the lnd macaroon used to authenticate"`
	LndTLSCert string `long:"lnd.tlscertpath" description:"path to lnd's TLS certificate"`

	MaxSwapFeePPM uint32 `long:"maxswapfeeppm" description:"maximum accepted swap fee, in parts per million of the swap amount"`
	MaxMinerFee   int64  `long:"maxminerfee" description:"maximum accepted on-chain miner fee, in satoshis"`
	MaxCLTVDelta  uint32 `long:"maxcltvdelta" description:"maximum accepted timeout delta, in blocks"`
}

// defaultConfig returns a config populated with nloopd's defaults, mirroring
// the teacher's defaultConfig() pattern of a fully-populated struct literal
// that flags.Parse then overrides field-by-field.
func defaultConfig() config {
	return config{
		Network:        defaultNetwork,
		NloopDir:       defaultNloopDir,
		LogDir:         filepath.Join(defaultNloopDir, defaultLogDirname),
		DebugLevel:     defaultLogLevel,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileMB:   defaultMaxLogFileMB,
		SwapServerHost: defaultSwapServerHost,
		LndHost:        defaultLndHost,
		MaxSwapFeePPM:  defaultMaxSwapFeePPM,
		MaxMinerFee:    defaultMaxMinerFee,
		MaxCLTVDelta:   defaultMaxCLTVDelta,
	}
}

// loadConfig parses command-line flags over top of the defaults. A bare
// --help exits 0 via flags.ErrHelp exactly as the teacher's own CLI
// entrypoints special-case it.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if err := os.MkdirAll(cfg.NloopDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create nloop dir: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create log dir: %w", err)
	}

	return &cfg, nil
}

func (c *config) dbDir() string {
	return filepath.Join(c.NloopDir, defaultDataDirname)
}

func (c *config) logFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}
