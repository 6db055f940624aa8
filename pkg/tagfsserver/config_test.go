package tagfsserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/function61/gokit/assert"
)

func TestReadServerConfigFileDefaults(t *testing.T) {
	// default file is optional
	scf, err := readServerConfigFile(DefaultConfigFilename)
	assert.Ok(t, err)
	assert.EqualString(t, scf.ListenAddr, ":8690")
	assert.EqualString(t, scf.IntegrityCheckSchedule, "@daily")

	// capacity has no default
	assert.Assert(t, scf.Validate() != nil)

	_, err = readServerConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Assert(t, err != nil)
}

func TestReadServerConfigFile(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "conf.json")

	assert.Ok(t, os.WriteFile(confPath, []byte(`{
	"data_dir": "/var/lib/tagfs",
	"capacity": 1073741824,
	"integrity_check_schedule": ""
}`), 0600))

	scf, err := readServerConfigFile(confPath)
	assert.Ok(t, err)
	assert.Ok(t, scf.Validate())
	assert.EqualString(t, scf.DataDir, "/var/lib/tagfs")
	assert.EqualString(t, scf.ListenAddr, ":8690") // default kept
	assert.EqualString(t, scf.IntegrityCheckSchedule, "")

	conf := scf.NodeConfig()
	assert.Assert(t, conf.Capacity == 1073741824)
	assert.EqualString(t, conf.BlobDriver, "localfs")
}

func TestReadServerConfigFileRejectsUnknownFields(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "conf.json")

	assert.Ok(t, os.WriteFile(confPath, []byte(`{"data_dir": "x", "capacity": 1, "colour": "blue"}`), 0600))

	_, err := readServerConfigFile(confPath)
	assert.Assert(t, err != nil)
}

func TestValidate(t *testing.T) {
	valid := func() ServerConfigFile {
		scf := defaultServerConfigFile()
		scf.Capacity = 100
		return scf
	}

	for _, tc := range []struct {
		name   string
		mutate func(*ServerConfigFile)
		ok     bool
	}{
		{"defaults + capacity", func(*ServerConfigFile) {}, true},
		{"no data dir", func(s *ServerConfigFile) { s.DataDir = "" }, false},
		{"negative capacity", func(s *ServerConfigFile) { s.Capacity = -1 }, false},
		{"unknown driver", func(s *ServerConfigFile) { s.BlobDriver = "ftp" }, false},
		{"s3 driver", func(s *ServerConfigFile) { s.BlobDriver = "s3" }, true},
		{"bad schedule", func(s *ServerConfigFile) { s.IntegrityCheckSchedule = "whenever" }, false},
		{"cron schedule", func(s *ServerConfigFile) { s.IntegrityCheckSchedule = "30 3 * * *" }, true},
		{"advertise", func(s *ServerConfigFile) { s.AdvertiseAddr = "192.168.1.5:8690" }, true},
		{"bad advertise", func(s *ServerConfigFile) { s.AdvertiseAddr = "192.168.1.5" }, false},
	} {
		tc := tc // pin
		t.Run(tc.name, func(t *testing.T) {
			scf := valid()
			tc.mutate(&scf)

			assert.Assert(t, (scf.Validate() == nil) == tc.ok)
		})
	}
}
