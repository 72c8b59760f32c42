package datastore

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/stevegt/datastore/engine"
	"github.com/stevegt/datastore/engine/bolt"
	. "github.com/stevegt/goadapt"
)

// cliArgs is the kong grammar.  Database, store and directory flags
// have no kong defaults so a profile can fill them in.
type cliArgs struct {
	Dir       string `short:"d" env:"DATASTORE_DIR" help:"Directory holding database files (default \".\")."`
	Db        string `help:"Database name (default \"Default DB\")."`
	Store     string `short:"s" help:"Store name (default \"data\")."`
	DbVersion int    `name:"db-version" help:"Schema version to open the database at."`
	Config    string `short:"c" help:"YAML profile supplying dir, db, store and version."`
	Verbose   bool   `short:"v" help:"Show debug information on stderr."`

	Setup struct {
		Stores []string `arg:"" optional:"" help:"Stores to create (default \"data\")."`
	} `cmd:"" help:"Create or upgrade a database and its stores."`
	Get struct {
		Key string `arg:"" help:"Key to look up."`
	} `cmd:"" help:"Print the value stored under a key as JSON."`
	Set struct {
		Key   string `arg:"" help:"Key to store under; must not exist yet."`
		Value string `arg:"" help:"Value; parsed as JSON if possible, else stored as a string."`
	} `cmd:"" help:"Store a value under a new key."`
	Rm struct {
		Key string `arg:"" help:"Key to remove."`
	} `cmd:"" help:"Remove a key."`
	Keys  struct{} `cmd:"" help:"List the keys in the store."`
	Count struct{} `cmd:"" help:"Print the number of records in the store."`
	Clear struct{} `cmd:"" help:"Remove every record from the store."`
	Dbs   struct{} `cmd:"" help:"List databases and their versions."`

	Drop struct {
		Names []string `arg:"" optional:"" help:"Databases to delete."`
	} `cmd:"" help:"Delete databases, or all of them if none are named."`

	Version struct{} `cmd:"" help:"Show version of datastore and its file format."`
}

// Config contains the configuration for the datastore CLI.
type Config struct {
	// Name is the name of the program
	Name string
	// Description is a short description of the program
	Description string
	// Version is the version of the program
	Version string
	// Exit is the function to call to exit the program
	Exit   func(int)
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewConfig returns a new Config struct with default values populated
func NewConfig() *Config {
	return &Config{
		Name:        "datastore",
		Description: "A command-line tool for reading and writing versioned embedded key-value stores.",
		Version:     CodeVersion(),
		Exit:        func(i int) { os.Exit(i) },
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

// Cli parses the given arguments and then executes the appropriate
// subcommand.
//
// We use this function instead of kong.Parse() so that we can pass in
// the arguments to parse, which lets tests drive the subcommands.
func Cli(args []string, config *Config) (rc int, err error) {
	defer Return(&err)

	var cli cliArgs
	options := []kong.Option{
		kong.Name(config.Name),
		kong.Description(config.Description),
		kong.Exit(config.Exit),
		kong.Writers(config.Stdout, config.Stderr),
		kong.Vars{
			"version": config.Version,
		},
	}

	parser, err := kong.New(&cli, options...)
	Ck(err)
	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	if err != nil {
		// config.Exit returned instead of exiting
		return 1, nil
	}

	if cli.Verbose {
		defer restoreEnv("DEBUG")()
		os.Setenv("DEBUG", "1")
	}
	Debug("ctx: %+v", ctx)

	if cli.Config != "" {
		profile, err := LoadProfile(cli.Config)
		Ck(err)
		profile.apply(&cli)
	}
	if cli.Dir == "" {
		cli.Dir = "."
	}

	eng, err := bolt.New(cli.Dir, nil)
	Ck(err)

	ds := New(eng, cli.Db, cli.Store)
	ds.Version = cli.DbVersion
	out := config.Stdout

	cmd := strings.Fields(ctx.Command())[0]
	switch cmd {
	case "setup":
		opts := SetupOptions{
			Name:    ds.DbName,
			Version: cli.DbVersion,
			Stores:  cli.Setup.Stores,
			OnUpgradeNeeded: func(db engine.Conn, created []*DataStore) {
				for _, s := range created {
					Fpf(out, "created store %s\n", s.StoreName)
				}
			},
		}
		db, err := SetupDb(eng, opts)
		Ck(err)
		Fpf(out, "database %q at version %d: %s\n", db.Name(), db.Version(), strings.Join(db.StoreNames(), ", "))
		err = db.Close()
		Ck(err)
	case "get":
		value, err := ds.GetItem(cli.Get.Key)
		Ck(err)
		buf, err := json.Marshal(value)
		Ck(err)
		Fpf(out, "%s\n", buf)
	case "set":
		var value interface{}
		err = json.Unmarshal([]byte(cli.Set.Value), &value)
		if err != nil {
			value = cli.Set.Value
		}
		err = ds.SetItem(cli.Set.Key, value)
		Ck(err)
	case "rm":
		err = ds.RemoveItem(cli.Rm.Key)
		Ck(err)
	case "keys":
		keys, err := ds.Keys()
		Ck(err)
		for _, key := range keys {
			Fpf(out, "%s\n", key)
		}
	case "count":
		n, err := ds.Count()
		Ck(err)
		Fpf(out, "%d\n", n)
	case "clear":
		err = ds.Clear()
		Ck(err)
	case "dbs":
		infos, err := ListDatabases(eng)
		Ck(err)
		for _, info := range infos {
			Fpf(out, "%s\t%d\n", info.Name, info.Version)
		}
	case "drop":
		dropped, err := DropDatabases(eng, cli.Drop.Names...)
		for _, name := range dropped {
			Fpf(out, "dropped %s\n", name)
		}
		Ck(err)
	case "version":
		Fpf(out, "datastore version %s\n", CodeVersion())
		Fpf(out, "file format version %s\n", bolt.FormatVersion)
	default:
		Fpf(config.Stderr, "Error: unrecognized command: %s\n", ctx.Command())
		rc = 1
		return
	}

	return
}

// restoreEnv returns a func that puts the environment variable key
// back the way it is now.
func restoreEnv(key string) func() {
	old, ok := os.LookupEnv(key)
	return func() {
		if ok {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	}
}
