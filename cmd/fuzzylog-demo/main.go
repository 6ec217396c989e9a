// Command fuzzylog-demo drives a client.Handle against the in-memory fake
// transport, appending a few values to a chain and snapshotting them back,
// to exercise the coordinator end to end from the command line.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/deen17/fuzzylog/client"
	"github.com/deen17/fuzzylog/config"
	"github.com/deen17/fuzzylog/fuzzylog"
	"github.com/deen17/fuzzylog/log"
	"github.com/deen17/fuzzylog/store"
	"github.com/deen17/fuzzylog/store/memstore"
)

func main() {
	app := &cli.App{
		Name:  "fuzzylog-demo",
		Usage: "append a few values to a chain and read them back",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "chain", Value: 1, Usage: "chain id to append to and snapshot"},
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file (config.Defaults used if omitted)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("fuzzylog-demo failed", "err", err)
	}
}

func run(c *cli.Context) error {
	chain := fuzzylog.ChainID(c.Uint64("chain"))
	values := c.Args().Slice()
	if len(values) == 0 {
		values = []string{"1", "17", "32", "-1"}
	}

	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config %q: %w", path, err)
		}
		cfg = loaded
	}

	pending := make(chan fuzzylog.StoreEvent, 64)
	transport := memstore.New(store.SinkFunc(pending))
	h := client.Open([]fuzzylog.ChainID{chain}, transport, cfg)

	go h.Pump(pending)

	for _, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse value %q: %w", v, err)
		}
		h.Append(chain, []byte(strconv.Itoa(n)), nil)
	}

	h.Snapshot(chain)
	for h.PendingSnapshots() > 0 {
		r := h.GetNext()
		if r.IsMarker() {
			continue
		}
		fmt.Printf("%s -> %s\n", locString(r.Locations), r.Payload)
		h.ReturnBuffer(r)
	}

	h.Shutdown()
	return transport.Close()
}

func locString(locs []fuzzylog.Location) string {
	s := ""
	for i, l := range locs {
		if i > 0 {
			s += ","
		}
		s += l.String()
	}
	return s
}
