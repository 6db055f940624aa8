package tagfsserver

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/blobstore"
	"github.com/function61/tagfs/pkg/blobstore/localfsblobstore"
	"github.com/function61/tagfs/pkg/blobstore/s3blobstore"
	"github.com/robfig/cron/v3"
)

const (
	DefaultConfigFilename = "tagfs-server.json"
	DefaultListenAddr     = ":8690"
)

type ServerConfigFile struct {
	DataDir                string `json:"data_dir" validate:"required"`
	Capacity               int64  `json:"capacity" validate:"gt=0"` // bytes
	ListenAddr             string `json:"listen_addr" validate:"required"`
	AdvertiseAddr          string `json:"advertise_addr,omitempty" validate:"omitempty,hostname_port"` // "" = autodetect
	DisableDiscovery       bool   `json:"disable_discovery,omitempty"`
	BlobDriver             string `json:"blob_driver,omitempty" validate:"omitempty,oneof=localfs s3"`
	BlobDriverOpts         string `json:"blob_driver_opts,omitempty"`
	IntegrityCheckSchedule string `json:"integrity_check_schedule"` // cron expression, "" = disabled
}

func defaultServerConfigFile() ServerConfigFile {
	return ServerConfigFile{
		DataDir:                "data",
		ListenAddr:             DefaultListenAddr,
		BlobDriver:             "localfs",
		IntegrityCheckSchedule: "@daily",
	}
}

// missing file is not an error if it's the default one, so flags alone can configure us
func readServerConfigFile(path string) (*ServerConfigFile, error) {
	scf := defaultServerConfigFile()

	exists, err := fileexists.Exists(path)
	if err != nil {
		return nil, err
	}

	if !exists {
		if path != DefaultConfigFilename {
			return nil, fmt.Errorf("config file not found: %s", path)
		}

		return &scf, nil
	}

	if err := jsonfile.Read(path, &scf, true); err != nil {
		return nil, err
	}

	return &scf, nil
}

func (s *ServerConfigFile) Validate() error {
	if err := configValidator.Struct(s); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if s.IntegrityCheckSchedule != "" {
		if _, err := cron.ParseStandard(s.IntegrityCheckSchedule); err != nil {
			return fmt.Errorf("config: integrity_check_schedule: %w", err)
		}
	}

	return nil
}

func (s *ServerConfigFile) NodeConfig() Config {
	return Config{
		DataDir:        s.DataDir,
		Capacity:       s.Capacity,
		BlobDriver:     s.BlobDriver,
		BlobDriverOpts: s.BlobDriverOpts,
	}
}

func newBlobDriver(conf Config, logger *log.Logger) (blobstore.Driver, error) {
	switch conf.BlobDriver {
	case "", "localfs":
		return localfsblobstore.New(
			filepath.Join(conf.DataDir, "files"),
			logex.Prefix("localfs", logger)), nil
	case "s3":
		return s3blobstore.New(conf.BlobDriverOpts, logex.Prefix("s3", logger))
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", conf.BlobDriver)
	}
}
