package datastore

import (
	"os"

	. "github.com/stevegt/goadapt"
	"gopkg.in/yaml.v3"
)

// Profile holds CLI defaults read from a YAML file, e.g.:
//
//	dir: /var/lib/myapp
//	db: My Database
//	store: My Store
//	version: 2
type Profile struct {
	Dir     string `yaml:"dir"`
	Db      string `yaml:"db"`
	Store   string `yaml:"store"`
	Version int    `yaml:"version"`
}

// LoadProfile reads a profile from path.
func LoadProfile(path string) (p *Profile, err error) {
	defer Return(&err)
	buf, err := os.ReadFile(path)
	Ck(err)
	p = &Profile{}
	err = yaml.Unmarshal(buf, p)
	Ck(err, "cannot parse profile %q", path)
	return
}

// apply fills settings the command line left empty.
func (p *Profile) apply(args *cliArgs) {
	if args.Dir == "" {
		args.Dir = p.Dir
	}
	if args.Db == "" {
		args.Db = p.Db
	}
	if args.Store == "" {
		args.Store = p.Store
	}
	if args.DbVersion == 0 {
		args.DbVersion = p.Version
	}
}
