package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/andreyvit/datadic"
)

const envPrefix = "DATADIC"

type options struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	cmd := &cobra.Command{
		Use:   "datadic",
		Short: "Inspect a data dictionary and decode index keys",
		Long: `Inspect the data dictionary stored in a Bolt database and decode index keys.

Environment variables:
  DATADIC_DB=./data.db
  DATADIC_VERBOSE=true`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("db", "data.db", "path to the Bolt database")
	flags.Duration("timeout", 5*time.Second, "how long to wait for the database lock")
	flags.BoolP("verbose", "v", false, "log debug messages")
	for _, name := range []string{"config", "db", "timeout", "verbose"} {
		_ = o.v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(
		o.tablesCmd(),
		o.showCmd(),
		o.dumpCmd(),
		o.decodeCmd(),
		o.successorCmd(),
	)
	return cmd
}

func (o *options) init() error {
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	if fn := o.v.GetString("config"); fn != "" {
		o.v.SetConfigFile(fn)
		if err := o.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg zap.Config
	if o.v.GetBool("verbose") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	o.logger = logger
	return nil
}

// open loads the dictionary; the caller must call the returned close func.
func (o *options) open() (*datadic.DictManager, func(), error) {
	path := o.v.GetString("db")
	store, err := datadic.OpenBolt(path, datadic.BoltOptions{Timeout: o.v.GetDuration("timeout")})
	if err != nil {
		return nil, nil, err
	}
	dm, err := datadic.Open(store, datadic.Options{Logger: o.logger.With(zap.String("db", path))})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return dm, func() {
		dm.Close()
		if err := store.Close(); err != nil {
			o.logger.Warn("failed to close database", zap.Error(err))
		}
	}, nil
}

func (o *options) findTable(dm *datadic.DictManager, name string) (*datadic.TableDef, error) {
	tbl := dm.Find(name)
	if tbl == nil {
		return nil, fmt.Errorf("%w: %s", datadic.ErrTableNotFound, name)
	}
	return tbl, nil
}

func (o *options) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "tables",
		Aliases: []string{"ls"},
		Short:   "List tables with their index numbers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, closeFn, err := o.open()
			if err != nil {
				return err
			}
			defer closeFn()
			for _, tbl := range dm.Tables() {
				numbers := make([]string, 0, tbl.KeyCount())
				for _, n := range tbl.IndexNumbers() {
					numbers = append(numbers, fmt.Sprint(n))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", tbl.Name(), strings.Join(numbers, ","), tbl.AutoIncrement())
			}
			return nil
		},
	}
}

func (o *options) showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show table",
		Short: "Describe a table and its key layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, closeFn, err := o.open()
			if err != nil {
				return err
			}
			defer closeFn()
			tbl, err := o.findTable(dm, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				raw, err := tbl.SchemaJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), tbl.Dump(datadic.DumpAll))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the schema as JSON")
	return cmd
}

func (o *options) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Describe every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, closeFn, err := o.open()
			if err != nil {
				return err
			}
			defer closeFn()
			out := cmd.OutOrStdout()
			fmt.Fprint(out, dm.Dump(datadic.DumpAll))
			st := dm.Stats()
			fmt.Fprintf(out, "%d tables, %d indexes, next index number %d, max key %d bytes, max unpack info %d bytes\n",
				st.Tables, st.Indexes, st.NextNumber, st.MaxKeyLen, st.MaxUnpackInfoLen)
			return nil
		},
	}
}

func (o *options) decodeCmd() *cobra.Command {
	var unpackHex string
	cmd := &cobra.Command{
		Use:   "decode table index hexkey",
		Short: "Decode an index key into column values",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[2])
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			unpack, err := hex.DecodeString(unpackHex)
			if err != nil {
				return fmt.Errorf("invalid unpack info: %w", err)
			}

			dm, closeFn, err := o.open()
			if err != nil {
				return err
			}
			defer closeFn()
			tbl, err := o.findTable(dm, args[0])
			if err != nil {
				return err
			}
			kd := tbl.KeyDefNamed(args[1])
			if kd == nil {
				return fmt.Errorf("table %s has no index %s", tbl.Name(), args[1])
			}

			out := cmd.OutOrStdout()
			parts, err := kd.SplitKey(key)
			if err != nil {
				return err
			}
			for i, part := range parts {
				fmt.Fprintf(out, "part %d (%s): %x\n", i, kd.PackInfo(i).Column.Name, part)
			}

			row := tbl.Schema().NewRow()
			err = kd.UnpackRecord(row, key, unpack)
			switch {
			case err == nil:
				fmt.Fprintln(out, kd.FormatRow(row))
			case errors.Is(err, datadic.ErrMissingUnpackInfo):
				o.logger.Debug("cannot decode without unpack info", zap.Error(err))
				fmt.Fprintln(out, "values need unpack info (--unpack)")
			default:
				return err
			}

			if !kd.IsPrimary() {
				pkKey, err := kd.PrimaryKeyTuple(nil, tbl.PrimaryKey(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "primary key: %x\n", pkKey)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unpackHex, "unpack", "", "unpack info stored with the key, hex")
	return cmd
}

func (o *options) successorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "successor hexkey",
		Short: "Print the smallest key greater than every key with the given prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("invalid key: %w", err)
			}
			succ, ok := datadic.Successor(key)
			if !ok {
				return fmt.Errorf("key %s has no successor", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", succ)
			return nil
		},
	}
}
