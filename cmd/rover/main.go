// Rover runs the drive-control core. `run` drives from base station packets
// (manual or autonomous), `manual` drives from "throttle turn" lines on stdin.
package main

import (
	"bufio"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"RoverDrive/internal/core"
	"RoverDrive/internal/model"
	"RoverDrive/internal/parser"
	"RoverDrive/internal/util"
)

func main() {
	util.SetupLogger()

	app := cli.NewApp()
	app.Name = "rover"
	app.Usage = "run the rover drive-control core"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "configs/rover.yml",
			Usage: "path to configuration file",
		},
		cli.BoolFlag{
			Name:  "sim",
			Usage: "replace hardware with the simulated plant",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "drive from base station packets until interrupted",
			Action: runAction,
		},
		{
			Name:   "manual",
			Usage:  "drive from \"throttle turn\" lines on stdin; EOF or Ctrl+C stops every motor",
			Action: manualAction,
		},
	}
	app.Action = runAction

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func startSystem(c *cli.Context) (*core.System, error) {
	path := c.GlobalString("config")
	util.Info("[Main] Using config: %s", path)
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if c.GlobalBool("sim") && !cfg.Simulation.Enabled {
		cfg.Simulation.Enabled = true
		cfg.Motors = nil
		cfg.ApplyDefaults()
	}
	sys, err := core.NewSystem(cfg)
	if err != nil {
		return nil, err
	}
	if err := sys.StartAll(); err != nil {
		sys.StopAll()
		return nil, err
	}
	return sys, nil
}

func runAction(c *cli.Context) error {
	sys, err := startSystem(c)
	if err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-sys.Done():
	}

	util.Info("[Main] Shutting down system...")
	sys.StopAll()
	util.Info("[Main] System stopped cleanly.")
	return nil
}

func manualAction(c *cli.Context) error {
	sys, err := startSystem(c)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		sys.State.Stop()
	}()

	go func() {
		defer sys.State.Stop()
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := sc.Text()
			if line == "q" || line == "quit" {
				return
			}
			throttle, turn, err := parser.ParseThrottleTurn(line)
			if err != nil {
				util.Warn("[manual] %v", err)
				continue
			}
			sys.State.Set(throttle, turn)
		}
	}()

	// the control loop zeroes every motor before it exits
	<-sys.Done()
	sys.StopAll()
	util.Info("[Main] Manual session ended.")
	return nil
}
